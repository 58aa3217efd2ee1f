// Command mlstnode runs a single non-root MLST participant over a real
// memberlist transport, exposing the node's id, parent, and state on
// stdout. It is the sample node program named as an external collaborator
// in spec §1.
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
	Use:   "mlstnode",
	Short: "run a single non-root node in a maximum-leaf spanning tree",
	RunE:  runNode,
}

func init() {
	rootCmd.Flags().Uint16Var(&flagID, "id", 0, "this node's 16-bit identifier (required, nonzero)")
	rootCmd.Flags().StringVar(&flagBindAddr, "bind-addr", "127.0.0.1", "address to bind the membership transport to")
	rootCmd.Flags().IntVar(&flagBindPort, "bind-port", 7946, "port to bind the membership transport to")
	rootCmd.Flags().StringSliceVar(&flagJoin, "join", nil, "host:port addresses of existing cluster members")
	rootCmd.Flags().StringVar(&flagVariant, "variant", "base", "energy variant: base, ea1, ea2, or ea3")
	_ = rootCmd.MarkFlagRequired("id")
}

func runNode(cmd *cobra.Command, _ []string) error {
	if flagID == 0 {
		return fmt.Errorf("mlstnode: --id must be nonzero (0 is reserved for undefined)")
	}

	variant, err := parseVariant(flagVariant)
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("mlstnode: build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	radio, err := memberlink.New(link.NodeID(flagID), flagBindAddr, flagBindPort)
	if err != nil {
		return fmt.Errorf("mlstnode: create radio: %w", err)
	}
	defer func() { _ = radio.Shutdown() }()

	if len(flagJoin) > 0 {
		if _, err := radio.Join(flagJoin); err != nil {
			return fmt.Errorf("mlstnode: join cluster: %w", err)
		}
	}

	cfg := config.Default()
	cfg.Variant = variant
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("mlstnode: invalid tunables (fields: %s): %w", strings.Join(verrs.Fields(), ", "), err)
		}
		return fmt.Errorf("mlstnode: invalid tunables: %w", err)
	}

	n, err := node.New(radio, link.NodeID(flagID), false, cfg, node.WithLogger(log))
	if err != nil {
		return fmt.Errorf("mlstnode: create node: %w", err)
	}
	defer n.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go printStateLoop(ctx, n)

	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mlstnode: run loop: %w", err)
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
		return 0, fmt.Errorf("mlstnode: unknown variant %q", s)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
