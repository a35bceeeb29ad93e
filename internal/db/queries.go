package db

import (
	"database/sql"
	"fmt"
)

// BuildEvent represents a row in the build_events table.
type BuildEvent struct {
	ID        int
	Build     int
	Event     string
	Stage     string
	Detail    string
	Timestamp string
}

// CommandRun represents a row in the command_runs table.
type CommandRun struct {
	ID         int
	Build      int
	Stage      string
	Policy     string
	ExitCode   int
	DurationMs int64
	Passed     bool
	TimedOut   bool
	Timestamp  string
}

// GateDecision represents a row in the gate_decisions table.
type GateDecision struct {
	ID         int
	Build      int
	Stage      string
	GateID     string
	DecisionID string
	Decision   string
	Approver   string
	Timestamp  string
}

// LogBuildEvent inserts a build event.
func (d *DB) LogBuildEvent(build int, event, stage, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO build_events (build, event, stage, detail) VALUES (?, ?, ?, ?)`,
		build, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("log build event: %w", err)
	}
	return nil
}

// LogCommandRun inserts a command run.
func (d *DB) LogCommandRun(build int, stage, policy string, exitCode int, durationMs int64, passed, timedOut bool) error {
	_, err := d.conn.Exec(
		`INSERT INTO command_runs (build, stage, policy, exit_code, duration_ms, passed, timed_out)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		build, stage, policy, exitCode, durationMs, passed, timedOut,
	)
	if err != nil {
		return fmt.Errorf("log command run: %w", err)
	}
	return nil
}

// LogGateDecision inserts a gate decision for the audit trail.
func (d *DB) LogGateDecision(build int, stage, gateID, decisionID, decision, approver string) error {
	_, err := d.conn.Exec(
		`INSERT INTO gate_decisions (build, stage, gate_id, decision_id, decision, approver)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		build, stage, gateID, decisionID, decision, approver,
	)
	if err != nil {
		return fmt.Errorf("log gate decision: %w", err)
	}
	return nil
}

// GetBuildEvents returns all events for a build in insertion order.
func (d *DB) GetBuildEvents(build int) ([]BuildEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, build, event, stage, detail, timestamp
		 FROM build_events WHERE build = ? ORDER BY id ASC`,
		build,
	)
	if err != nil {
		return nil, fmt.Errorf("get build events: %w", err)
	}
	defer rows.Close()

	var events []BuildEvent
	for rows.Next() {
		var e BuildEvent
		var stage, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Build, &e.Event, &stage, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan build event: %w", err)
		}
		e.Stage = stage.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetCommandRuns returns all command runs for a build in insertion order.
func (d *DB) GetCommandRuns(build int) ([]CommandRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, build, stage, policy, exit_code, duration_ms, passed, timed_out, timestamp
		 FROM command_runs WHERE build = ? ORDER BY id ASC`,
		build,
	)
	if err != nil {
		return nil, fmt.Errorf("get command runs: %w", err)
	}
	defer rows.Close()

	var runs []CommandRun
	for rows.Next() {
		var r CommandRun
		var exitCode sql.NullInt64
		var durationMs sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Build, &r.Stage, &r.Policy, &exitCode, &durationMs, &r.Passed, &r.TimedOut, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan command run: %w", err)
		}
		r.ExitCode = int(exitCode.Int64)
		r.DurationMs = durationMs.Int64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetGateDecisions returns all gate decisions for a build in insertion order.
func (d *DB) GetGateDecisions(build int) ([]GateDecision, error) {
	rows, err := d.conn.Query(
		`SELECT id, build, stage, gate_id, decision_id, decision, approver, timestamp
		 FROM gate_decisions WHERE build = ? ORDER BY id ASC`,
		build,
	)
	if err != nil {
		return nil, fmt.Errorf("get gate decisions: %w", err)
	}
	defer rows.Close()

	var decisions []GateDecision
	for rows.Next() {
		var g GateDecision
		var approver sql.NullString
		if err := rows.Scan(&g.ID, &g.Build, &g.Stage, &g.GateID, &g.DecisionID, &g.Decision, &approver, &g.Timestamp); err != nil {
			return nil, fmt.Errorf("scan gate decision: %w", err)
		}
		g.Approver = approver.String
		decisions = append(decisions, g)
	}
	return decisions, rows.Err()
}
