// Command simple_client issues a single TFTP download or upload, per
// spec.md §6's "simple_client -H <addr> -P <port> -W <workdir> -D <file>
// | -U <file>" CLI surface.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tftpcore/tftpd/internal/logging"
	"github.com/tftpcore/tftpd/internal/transfer"
)

var (
	host         string
	port         int
	workdir      string
	downloadFile string
	uploadFile   string
)

var rootCmd = &cobra.Command{
	Use:   "simple_client",
	Short: "Download or upload one file over TFTP",
	Long: `simple_client performs a single download or upload against a
TFTP server and exits 0 on success, non-zero otherwise, per spec.md §6.

Examples:
  simple_client -H 10.0.0.1 -P 69 -W /tmp -D boot.img
  simple_client -H 10.0.0.1 -P 69 -W /tmp -U notes.txt`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "server address")
	rootCmd.Flags().IntVarP(&port, "port", "P", 69, "server UDP port")
	rootCmd.Flags().StringVarP(&workdir, "workdir", "W", ".", "local directory for the transferred file")
	rootCmd.Flags().StringVarP(&downloadFile, "download", "D", "", "filename to download from the server")
	rootCmd.Flags().StringVarP(&uploadFile, "upload", "U", "", "filename to upload to the server")
}

func run(cmd *cobra.Command, args []string) error {
	if (downloadFile == "") == (uploadFile == "") {
		return fmt.Errorf("exactly one of -D or -U is required")
	}

	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	log := logging.Glog()
	cfg := transfer.Config{Log: log}

	done := make(chan transfer.Outcome, 1)
	onDone := func(o transfer.Outcome) { done <- o }

	if downloadFile != "" {
		local := filepath.Join(workdir, filepath.Base(downloadFile))
		w, err := transfer.NewDownloadClient(addr, local, cfg, onDone)
		if err != nil {
			return err
		}
		w.Start()
	} else {
		local := filepath.Join(workdir, filepath.Base(uploadFile))
		w, err := transfer.NewUploadClient(addr, local, cfg, onDone)
		if err != nil {
			return err
		}
		w.Start()
	}

	outcome := <-done
	if outcome.Kind != transfer.KindSuccess {
		return fmt.Errorf("transfer failed: %s", outcome)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
