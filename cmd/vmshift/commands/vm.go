package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/engine"
	"github.com/franksops/vmshift/provider"
	"github.com/franksops/vmshift/transfer"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Download, upload and copy VMs",
}

var (
	downloadDir  string
	uploadParams []string
	uploadFrom   string
	uploadScan   bool
	copyTmpDir   string
)

var downloadCmd = &cobra.Command{
	Use:   "download <vm_id>...",
	Short: "Download VMs into <dir>/vm_<id>/",
	Long: `Export each VM and download its image together with a vm.yaml describing
its network, so the directory can be uploaded again later.

Examples:
  vmshift vm download 123 456 --dir /data/vms
  vmshift vm download 123 --dir s3://staging-bucket/vms`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload vm.7z archives or downloaded VM directories",
	Long: `Import each path. A directory must contain vm.7z and may contain vm.yaml,
whose values are used as import parameters unless overridden with --param.
Repeat --param credentials=... to attach several credentials.

Examples:
  vmshift vm upload /data/vms/vm_123 --param template_name=web
  vmshift vm upload /data/vms --scan
  vmshift vm upload vm_123 --from s3://staging-bucket/vms`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var copyCmd = &cobra.Command{
	Use:   "copytoregion <region> <vm_id>...",
	Short: "Copy VMs into another region",
	Long: `Download each VM into a private staging directory under --tmpdir, upload it
into the target region, then remove the staging directory.

Example:
  vmshift vm copytoregion EMEA 123 456 --tmpdir /scratch`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCopy,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadDir, "dir", ".", "destination directory (local path or s3://bucket/prefix)")

	uploadCmd.Flags().StringArrayVar(&uploadParams, "param", nil, "import parameter as key=value (repeatable)")
	uploadCmd.Flags().StringVar(&uploadFrom, "from", "", "resolve paths inside this location (local path or s3://bucket/prefix)")
	uploadCmd.Flags().BoolVar(&uploadScan, "scan", false, "treat paths as roots and upload every VM directory found below them")

	copyCmd.Flags().StringVar(&copyTmpDir, "tmpdir", os.TempDir(), "staging root (local path or s3://bucket/prefix)")

	vmCmd.AddCommand(downloadCmd)
	vmCmd.AddCommand(uploadCmd)
	vmCmd.AddCommand(copyCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	local, base, err := provider.Open(ctx, downloadDir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", downloadDir, err)
	}
	op := engine.NewExportOperation(rt.client, transfer.NewFTP(local), local, base)

	return rt.run(ctx, "download", func(ctx context.Context, out io.Writer, onProgress func(engine.View)) engine.Response {
		opts := rt.options()
		opts.Output = out
		opts.OnProgress = onProgress
		return engine.NewController(op, args, opts).Run(ctx)
	})
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	params, err := parseParams(uploadParams)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	local, base, err := provider.Open(ctx, uploadFrom)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", uploadFrom, err)
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if uploadFrom != "" {
			arg = local.Join(base, arg)
		}
		paths = append(paths, arg)
	}

	if uploadScan {
		walker := engine.NewWalker(local)
		var found []string
		for _, root := range paths {
			dirs, err := walker.Walk(ctx, root)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", root, err)
			}
			found = append(found, dirs...)
		}
		if len(found) == 0 {
			return fmt.Errorf("no directory containing %s found", engine.ArchiveFile)
		}
		rt.log.Info("found VM directories", "count", len(found))
		paths = found
	}

	op := engine.NewImportOperation(rt.client, transfer.NewFTP(local), local, params)
	return rt.run(ctx, "upload", func(ctx context.Context, out io.Writer, onProgress func(engine.View)) engine.Response {
		opts := rt.options()
		opts.Output = out
		opts.OnProgress = onProgress
		return engine.NewController(op, paths, opts).Run(ctx)
	})
}

func runCopy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	region, vmIDs := args[0], args[1:]

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	local, base, err := provider.Open(ctx, copyTmpDir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", copyTmpDir, err)
	}
	xfer := transfer.NewFTP(local)

	return rt.run(ctx, "copy to "+region, func(ctx context.Context, out io.Writer, onProgress func(engine.View)) engine.Response {
		return engine.NewCopyController(rt.client, xfer, local, vmIDs, engine.CopyOptions{
			Region:     region,
			TmpDir:     base,
			Child:      rt.options(),
			OnProgress: onProgress,
			Output:     out,
			Logger:     rt.log,
		}).Run(ctx)
	})
}

// parseParams turns key=value pairs into import parameters. Repeated
// credentials keys accumulate into a list.
func parseParams(pairs []string) (api.Params, error) {
	params := api.Params{}
	var creds []string
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		if key == "credentials" {
			creds = append(creds, value)
			continue
		}
		params[key] = value
	}
	if len(creds) > 0 {
		params["credentials"] = creds
	}
	return params, nil
}
