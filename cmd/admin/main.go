package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cityrun.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "give":
			giveCmd(os.Args[2:])
			return
		case "command":
			commandCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the runs found under the data directory.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// inspectCmd summarises a snapshot file without a running server.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	runDir := fs.String("run", "", "run directory (uses the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (overrides -run)")
	_ = fs.Parse(args)

	path := *snapPath
	if path == "" {
		if *runDir == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -snapshot")
			os.Exit(2)
		}
		p, err := snapshot.Latest(filepath.Join(*runDir, "snapshots"))
		if err != nil || p == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found:", err)
			os.Exit(1)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("sim=%s step=%d/%d seed=%d digest=%s\n", snap.Header.SimID, snap.Header.Step, snap.Config.Steps, snap.Config.Seed, snap.Header.Digest)
	fmt.Printf("entities=%d shops=%d workshops=%d stations=%d dumps=%d storages=%d jobs=%d\n",
		len(snap.State.Entities), len(snap.State.Shops), len(snap.State.Workshops),
		len(snap.State.ChargingStations), len(snap.State.Dumps), len(snap.State.Storages), len(snap.State.Jobs))
	for team, money := range snap.State.Teams {
		fmt.Printf("team %s money=%d\n", team, money)
	}
}
