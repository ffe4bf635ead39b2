package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	building := fs.String("building", "", "building id filter (repairs, audits)")
	agent := fs.String("agent", "", "agent id filter (charges, audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, strings.TrimSpace(*building), strings.TrimSpace(*agent), *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-building B] [-agent P] snapshots|ticks|repairs|charges|audits")
		os.Exit(1)
	}
}

type snapshotRow struct {
	Tick      int64  `json:"tick"`
	Path      string `json:"path"`
	Players   int    `json:"players"`
	Buildings int    `json:"buildings"`
	Repairing int    `json:"repairing"`
}

type tickRow struct {
	Tick    int64  `json:"tick"`
	Digest  string `json:"digest"`
	Joins   int    `json:"joins"`
	Leaves  int    `json:"leaves"`
	Admin   int    `json:"admin"`
	Actions int    `json:"actions"`
	Repairs int    `json:"repairs"`
}

type repairRow struct {
	Tick       int64  `json:"tick"`
	BuildingID string `json:"building_id"`
	Cost       int    `json:"cost"`
	Healed     int    `json:"healed"`
	Payers     int    `json:"payers"`
	Evicted    int    `json:"evicted"`
	Aborted    bool   `json:"aborted"`
	Completed  bool   `json:"completed"`
}

type chargeRow struct {
	Tick       int64  `json:"tick"`
	BuildingID string `json:"building_id"`
	AgentID    string `json:"agent_id"`
	Amount     int    `json:"amount"`
}

type auditRow struct {
	Tick   int64  `json:"tick"`
	Seq    int    `json:"seq"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// runQuery executes one named read-model query, handing each row to emit.
func runQuery(db *sql.DB, q, building, agent string, limit int, emit func(any)) error {
	var (
		query string
		args  []any
		scan  func(*sql.Rows) (any, error)
	)
	switch q {
	case "snapshots":
		query = `SELECT tick,path,players,buildings,repairing FROM snapshots ORDER BY tick DESC LIMIT ?`
		args = []any{limit}
		scan = func(rows *sql.Rows) (any, error) {
			var r snapshotRow
			err := rows.Scan(&r.Tick, &r.Path, &r.Players, &r.Buildings, &r.Repairing)
			return r, err
		}

	case "ticks":
		query = `SELECT tick,digest,joins,leaves,admin,actions,repairs FROM ticks ORDER BY tick DESC LIMIT ?`
		args = []any{limit}
		scan = func(rows *sql.Rows) (any, error) {
			var r tickRow
			err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Admin, &r.Actions, &r.Repairs)
			return r, err
		}

	case "repairs":
		query = `SELECT tick,building_id,cost,healed,payers,evicted,aborted,completed FROM repair_cycles ORDER BY tick DESC, building_id LIMIT ?`
		args = []any{limit}
		if building != "" {
			query = `SELECT tick,building_id,cost,healed,payers,evicted,aborted,completed FROM repair_cycles WHERE building_id=? ORDER BY tick DESC LIMIT ?`
			args = []any{building, limit}
		}
		scan = func(rows *sql.Rows) (any, error) {
			var r repairRow
			var aborted, completed int
			err := rows.Scan(&r.Tick, &r.BuildingID, &r.Cost, &r.Healed, &r.Payers, &r.Evicted, &aborted, &completed)
			r.Aborted = aborted != 0
			r.Completed = completed != 0
			return r, err
		}

	case "charges":
		query = `SELECT tick,building_id,agent_id,amount FROM repair_charges ORDER BY tick DESC, building_id, seq LIMIT ?`
		args = []any{limit}
		if agent != "" {
			query = `SELECT tick,building_id,agent_id,amount FROM repair_charges WHERE agent_id=? ORDER BY tick DESC, building_id LIMIT ?`
			args = []any{agent, limit}
		}
		scan = func(rows *sql.Rows) (any, error) {
			var r chargeRow
			err := rows.Scan(&r.Tick, &r.BuildingID, &r.AgentID, &r.Amount)
			return r, err
		}

	case "audits":
		query = `SELECT tick,seq,actor,action,target,from_value,to_value,COALESCE(reason,'') FROM audits`
		var where []string
		if building != "" {
			where = append(where, "target=?")
			args = append(args, building)
		}
		if agent != "" {
			where = append(where, "actor=?")
			args = append(args, agent)
		}
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		args = append(args, limit)
		scan = func(rows *sql.Rows) (any, error) {
			var r auditRow
			err := rows.Scan(&r.Tick, &r.Seq, &r.Actor, &r.Action, &r.Target, &r.From, &r.To, &r.Reason)
			return r, err
		}

	default:
		return fmt.Errorf("unknown query: %s", q)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		emit(r)
	}
	return rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
