package commands

import (
	"github.com/spf13/cobra"
)

var (
	// self is the ephemeral client's own node ID, as name@host:port. It
	// never accepts inbound cluster traffic beyond the gossip needed to
	// converge with daemonAddr, so any unused local port works.
	self string

	// listenAddr is the host:port the ephemeral client binds while it is
	// joined to the cluster.
	listenAddr string

	// daemonAddr is a seed address of a running clusterd, used to join the
	// cluster long enough to reach its admin actor.
	daemonAddr string

	// secret is the shared HMAC secret the target clusterd was started
	// with.
	secret string

	// targetNode overrides which node's admin actor a command talks to.
	// Empty means "whichever peer we discover first", which is correct
	// for a single-seed, single-target invocation.
	targetNode string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "clusterctl",
	Short: "Control client for a running clusterd node",
	Long: `clusterctl joins a clusterd's cluster just long enough to place one
admin call against it, then leaves. Use it to list cluster membership and to
spawn, call, cast, and stop actors on a remote node.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&self, "self", "clusterctl@127.0.0.1:17999",
		"this client's own node ID, as name@host:port (must match --listen)",
	)
	rootCmd.PersistentFlags().StringVar(
		&listenAddr, "listen", "127.0.0.1:17999",
		"host:port the client binds while joined to the cluster",
	)
	rootCmd.PersistentFlags().StringVar(
		&daemonAddr, "daemon", "127.0.0.1:7946",
		"host:port of a running clusterd to join through",
	)
	rootCmd.PersistentFlags().StringVar(
		&secret, "secret", "",
		"shared secret the target clusterd was started with",
	)
	rootCmd.PersistentFlags().StringVar(
		&targetNode, "target-node", "",
		"node ID to address (default: the first peer discovered via --daemon)",
	)

	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(castCmd)
	rootCmd.AddCommand(stopCmd)
}
