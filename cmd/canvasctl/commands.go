package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	ownerID   string
	email     string
	tokenTTL  time.Duration
	apiURL    string
	apiToken  string
	viewPath  string
	edgeKind  string
	nodeLabel string
	orphans   string

	rootCmd = &cobra.Command{
		Use:          "canvasctl",
		Short:        "Manage and inspect LifeOS canvases",
		SilenceUsage: true,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Create the root node of an owner's canvas in the configured store",
		RunE:  runSeed,
	}
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the configured secret",
		RunE:  runToken,
	}

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Print the node hierarchy of the canvas",
		RunE:  runTree,
	}
	viewCmd = &cobra.Command{
		Use:   "view",
		Short: "Print the nodes and edges visible at a navigation path",
		RunE:  runView,
	}
	createCmd = &cobra.Command{
		Use:   "create [parent-id]",
		Short: "Create a node, optionally nested under a parent",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCreate,
	}
	moveCmd = &cobra.Command{
		Use:   "move <node-id> <x> <y>",
		Short: "Move a node on its canvas",
		Args:  cobra.ExactArgs(3),
		RunE:  runMove,
	}
	connectCmd = &cobra.Command{
		Use:   "connect <source-id> <target-id>",
		Short: "Connect two nodes with an edge",
		Args:  cobra.ExactArgs(2),
		RunE:  runConnect,
	}
	deleteCmd = &cobra.Command{
		Use:     "delete <node-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a node and its edges",
		Args:    cobra.ExactArgs(1),
		RunE:    runDelete,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "dev-user", "owner id")

	tokenCmd.Flags().StringVar(&email, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	for _, cmd := range []*cobra.Command{treeCmd, viewCmd, createCmd, moveCmd, connectCmd, deleteCmd} {
		cmd.Flags().StringVar(&apiURL, "url", envOr("CANVAS_API_URL", "http://localhost:8080/api/canvas"), "canvas API base URL")
		cmd.Flags().StringVar(&apiToken, "token", os.Getenv("CANVAS_TOKEN"), "bearer token; minted locally when empty")
	}
	deleteCmd.Flags().StringVar(&orphans, "orphans", envOr("ORPHAN_POLICY", "keep"), "orphan policy of the service: keep, reparent or subtree")
	viewCmd.Flags().StringVar(&viewPath, "path", "", "comma separated node ids from the root")
	createCmd.Flags().StringVar(&nodeLabel, "label", "New node", "node label")
	connectCmd.Flags().StringVar(&edgeKind, "kind", "default", "edge style")

	rootCmd.AddCommand(seedCmd, tokenCmd, treeCmd, viewCmd, createCmd, moveCmd, connectCmd, deleteCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
