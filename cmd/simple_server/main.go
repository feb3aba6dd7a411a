// Command simple_server runs the TFTP listener of spec.md §4.9 as a
// single-shot binary: bind a local endpoint, serve a working directory,
// run until interrupted.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tftpcore/tftpd/internal/logging"
	"github.com/tftpcore/tftpd/internal/server"
	"github.com/tftpcore/tftpd/internal/transfer"
)

var (
	host    string
	port    int
	workdir string
)

var rootCmd = &cobra.Command{
	Use:   "simple_server",
	Short: "Serve files over TFTP from a working directory",
	Long: `simple_server binds a UDP endpoint and answers TFTP read and
write requests against a working directory, per spec.md §4.9.

Examples:
  simple_server -H 0.0.0.0 -P 69 -W /srv/tftp
  simple_server -W ./files`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&host, "host", "H", "0.0.0.0", "local address to bind")
	rootCmd.Flags().IntVarP(&port, "port", "P", 69, "UDP port to listen on")
	rootCmd.Flags().StringVarP(&workdir, "workdir", "W", ".", "directory serving read requests and accepting write requests")
}

func run(cmd *cobra.Command, args []string) error {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	log := logging.Glog()

	l, err := server.New(addr, workdir, transfer.Config{Log: log}, log)
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", host, port, err)
	}
	l.Start()
	fmt.Fprintf(os.Stdout, "serving %s on %s\n", workdir, l.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	l.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
