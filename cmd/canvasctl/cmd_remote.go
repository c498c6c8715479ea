package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/canvasclient"
)

// newSession loads the owner's canvas from the API
func newSession(cmd *cobra.Command) (*canvasclient.Session, error) {
	token := apiToken
	if token == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		if token, err = mintToken(cfg); err != nil {
			return nil, err
		}
	}

	policy, err := entities.ParseOrphanPolicy(orphans)
	if err != nil {
		return nil, err
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := logCfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	client := canvasclient.NewClient(
		canvasclient.NewHTTPTransport(apiURL, token, nil),
		canvasclient.WithOwner(ownerID),
		canvasclient.WithLogger(logger.Named("canvasctl")),
		canvasclient.WithOrphanPolicy(policy),
	)
	session := canvasclient.NewSession(client, navigation.WithSettleDelay(0))
	if err := session.Load(commandContext(cmd)); err != nil {
		return nil, fmt.Errorf("load canvas: %w", err)
	}
	return session, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runTree(cmd *cobra.Command, _ []string) error {
	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()
	printTree(cmd.OutOrStdout(), session.Client().Mirror(), "", 0, map[string]bool{})
	return nil
}

func printTree(w io.Writer, m *canvasclient.Mirror, parentID string, depth int, seen map[string]bool) {
	for _, n := range m.Children(parentID) {
		id := n.ID().String()
		if seen[id] {
			continue
		}
		seen[id] = true
		fmt.Fprintf(w, "%s%s  %q  (%g, %g)\n", strings.Repeat("  ", depth), id, n.Label(), n.Position().X(), n.Position().Y())
		printTree(w, m, id, depth+1, seen)
	}
}

func runView(cmd *cobra.Command, _ []string) error {
	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, crumb := range navigation.ParsePath(viewPath) {
		if !session.Enter(crumb.NodeID) {
			return fmt.Errorf("node %s cannot be entered", crumb.NodeID)
		}
	}

	v := session.View()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path: /%s\n", strings.Join(labels(session.Path()), "/"))
	for _, n := range v.Nodes {
		fmt.Fprintf(out, "node %s  %q\n", n.ID(), n.Label())
	}
	for _, e := range v.Edges {
		fmt.Fprintf(out, "edge %s  %s -> %s\n", e.ID(), e.Source(), e.Target())
	}
	return nil
}

func labels(p navigation.Path) []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Label
	}
	return out
}

func runCreate(cmd *cobra.Command, args []string) error {
	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()
	client := session.Client()

	node := api.Node{ID: client.NewNodeID(), Label: nodeLabel}
	if len(args) == 1 {
		node.Payload = map[string]interface{}{"parentId": args[0]}
	}
	h := client.ApplyLocal(canvasclient.CreateNode(node))
	if err := client.Commit(commandContext(cmd), h); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.EntityID())
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	x, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid y: %w", err)
	}

	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()

	drag, err := session.Client().BeginDrag(args[0])
	if err != nil {
		return err
	}
	if err := drag.Move(x, y); err != nil {
		drag.Cancel()
		return err
	}
	return drag.End(commandContext(cmd))
}

func runConnect(cmd *cobra.Command, args []string) error {
	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()

	id, err := session.Client().Connect(commandContext(cmd), args[0], args[1], entities.EdgeKind(edgeKind))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	session, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Client().Apply(commandContext(cmd), canvasclient.DeleteNode(args[0]))
}
