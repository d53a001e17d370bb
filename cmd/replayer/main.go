// replayer rebuilds the network state from one or more event log files
// and optionally cross-checks the result against the snapshot database.
// It is an offline consistency tool: a divergence between the journal
// and the snapshots means events were dropped or applied out of order.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"agentnet/pkg/eventlog"
	"agentnet/pkg/persistence"
	"agentnet/pkg/proto"
)

// replayedAgent is the journal's view of one agent.
type replayedAgent struct {
	state        proto.State
	dependencies map[proto.AgentID]struct{}
	pruned       bool
	transitions  int
}

func main() {
	var logDir string
	var dbPath string
	var verbose bool
	flag.StringVar(&logDir, "logs", "", "Directory of event log files (network-*.jsonl)")
	flag.StringVar(&dbPath, "db", "", "Snapshot database to cross-check (optional)")
	flag.BoolVar(&verbose, "verbose", false, "Print every replayed event")
	flag.Parse()

	if logDir == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -logs <dir> [-db <file>] [-verbose]\n", os.Args[0])
		os.Exit(1)
	}

	exitCode, err := run(logDir, dbPath, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(logDir, dbPath string, verbose bool) (int, error) {
	files, err := eventlog.ListLogFiles(logDir)
	if err != nil {
		return 1, err
	}
	if len(files) == 0 {
		return 1, fmt.Errorf("no event log files under %s", logDir)
	}
	sort.Strings(files)

	agents := make(map[proto.AgentID]*replayedAgent)
	total := 0

	for _, file := range files {
		events, err := eventlog.ReadEvents(file)
		if err != nil {
			return 1, fmt.Errorf("failed to replay %s: %w", file, err)
		}
		for _, event := range events {
			applyEvent(agents, event)
			total++
			if verbose {
				printEvent(event)
			}
		}
	}

	live := 0
	for _, a := range agents {
		if !a.pruned {
			live++
		}
	}
	fmt.Printf("🎬 Replayed %d events across %d files: %d agents seen, %d live\n",
		total, len(files), len(agents), live)

	if dbPath == "" {
		return 0, nil
	}

	mismatches, err := crossCheck(agents, dbPath)
	if err != nil {
		return 1, err
	}
	if mismatches > 0 {
		fmt.Printf("❌ Journal and snapshots disagree on %d agents\n", mismatches)
		return 1, nil
	}
	fmt.Printf("✅ Journal and snapshots agree\n")
	return 0, nil
}

func applyEvent(agents map[proto.AgentID]*replayedAgent, event *proto.NetworkEvent) {
	a, ok := agents[event.AgentID]
	if !ok {
		a = &replayedAgent{dependencies: make(map[proto.AgentID]struct{})}
		agents[event.AgentID] = a
	}

	switch {
	case event.Transition != nil:
		a.state = event.Transition.To
		a.transitions++
	case event.EdgeChange != nil:
		switch event.EdgeChange.Op {
		case proto.EdgeAdded:
			a.dependencies[event.EdgeChange.OtherID] = struct{}{}
		case proto.EdgeRemoved:
			delete(a.dependencies, event.EdgeChange.OtherID)
		}
	case event.Pruned:
		a.pruned = true
	}
}

func printEvent(event *proto.NetworkEvent) {
	switch {
	case event.Transition != nil:
		fmt.Printf("  %s  %s: %s → %s (%s)\n",
			event.Timestamp.Format("15:04:05"), event.AgentID,
			event.Transition.From, event.Transition.To, event.Trigger)
	case event.EdgeChange != nil:
		fmt.Printf("  %s  %s: edge %s %s\n",
			event.Timestamp.Format("15:04:05"), event.AgentID,
			event.EdgeChange.Op, event.EdgeChange.OtherID)
	case event.Pruned:
		fmt.Printf("  %s  %s: pruned\n", event.Timestamp.Format("15:04:05"), event.AgentID)
	}
}

// crossCheck compares the replayed view against the snapshot database.
// Pruned agents must be absent; live agents must match state and
// dependency sets exactly.
func crossCheck(agents map[proto.AgentID]*replayedAgent, dbPath string) (int, error) {
	db, err := persistence.InitializeDatabase(dbPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer func() { _ = db.Close() }()

	snapshots, err := persistence.NewStore(db).LoadAgents()
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshots: %w", err)
	}

	byID := make(map[proto.AgentID]*replayedAgent)
	for id, a := range agents {
		byID[id] = a
	}

	mismatches := 0
	for _, snap := range snapshots {
		replayed, ok := byID[snap.ID]
		if !ok {
			fmt.Printf("  • %s: in snapshots but never journaled\n", snap.ID)
			mismatches++
			continue
		}
		delete(byID, snap.ID)

		if replayed.pruned {
			fmt.Printf("  • %s: pruned in journal but still snapshotted\n", snap.ID)
			mismatches++
			continue
		}
		if replayed.state != snap.State {
			fmt.Printf("  • %s: journal says %s, snapshot says %s\n", snap.ID, replayed.state, snap.State)
			mismatches++
			continue
		}
		if !sameDependencies(replayed.dependencies, snap.Dependencies) {
			fmt.Printf("  • %s: dependency sets differ (journal %d, snapshot %d)\n",
				snap.ID, len(replayed.dependencies), len(snap.Dependencies))
			mismatches++
		}
	}

	for id, replayed := range byID {
		if !replayed.pruned {
			fmt.Printf("  • %s: journaled live agent missing from snapshots\n", id)
			mismatches++
		}
	}
	return mismatches, nil
}

func sameDependencies(a, b map[proto.AgentID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
