// Command mlstroot runs the sink node of a maximum-leaf spanning tree over
// a real memberlist transport, printing every application payload that
// reaches it (spec §6's "compile-time flag distinguishes root builds").
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/link"
	"github.com/carlisia/mlst/link/memberlink"
	"github.com/carlisia/mlst/node"
)

var (
	flagID       uint16
	flagBindAddr string
	flagBindPort int
	flagJoin     []string
	flagVariant  string
)

var rootCmd = &cobra.Command{
	Use:   "mlstroot",
	Short: "run the root/sink node of a maximum-leaf spanning tree",
	RunE:  runRoot,
}

func init() {
	rootCmd.Flags().Uint16Var(&flagID, "id", 1, "this node's 16-bit identifier")
	rootCmd.Flags().StringVar(&flagBindAddr, "bind-addr", "127.0.0.1", "address to bind the membership transport to")
	rootCmd.Flags().IntVar(&flagBindPort, "bind-port", 7946, "port to bind the membership transport to")
	rootCmd.Flags().StringSliceVar(&flagJoin, "join", nil, "host:port addresses of existing cluster members")
	rootCmd.Flags().StringVar(&flagVariant, "variant", "base", "energy variant: base, ea1, ea2, or ea3")
}

func runRoot(cmd *cobra.Command, _ []string) error {
	if flagID == 0 {
		return fmt.Errorf("mlstroot: --id must be nonzero")
	}

	variant, err := parseVariant(flagVariant)
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("mlstroot: build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	radio, err := memberlink.New(link.NodeID(flagID), flagBindAddr, flagBindPort)
	if err != nil {
		return fmt.Errorf("mlstroot: create radio: %w", err)
	}
	defer func() { _ = radio.Shutdown() }()

	if len(flagJoin) > 0 {
		if _, err := radio.Join(flagJoin); err != nil {
			return fmt.Errorf("mlstroot: join cluster: %w", err)
		}
	}

	cfg := config.Default()
	cfg.Variant = variant
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("mlstroot: invalid tunables (fields: %s): %w", strings.Join(verrs.Fields(), ", "), err)
		}
		return fmt.Errorf("mlstroot: invalid tunables: %w", err)
	}

	n, err := node.New(radio, link.NodeID(flagID), true, cfg,
		node.WithLogger(log),
		node.WithRootReceiveCallback(func(payload []byte) {
			fmt.Printf("received: %q\n", payload)
		}),
	)
	if err != nil {
		return fmt.Errorf("mlstroot: create node: %w", err)
	}
	defer n.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go printStateLoop(ctx, n)

	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mlstroot: run loop: %w", err)
	}
	return nil
}

func printStateLoop(ctx context.Context, n *node.Node) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Println(n.PrintState())
		}
	}
}

func parseVariant(s string) (config.EnergyVariant, error) {
	switch strings.ToLower(s) {
	case "base", "":
		return config.VariantBase, nil
	case "ea1":
		return config.VariantEA1, nil
	case "ea2":
		return config.VariantEA2, nil
	case "ea3":
		return config.VariantEA3, nil
	default:
		return 0, fmt.Errorf("mlstroot: unknown variant %q", s)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
