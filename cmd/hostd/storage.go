package main

import (
	"context"
	"fmt"
	"io"

	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/logging"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var (
	storageDir       string
	storageExtension string
	storageLocation  string
	storageInitial   string
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Create, read and write storage files",
	Long:  `Operates on storage files directly, without a running server.`,
}

var storageCreateCmd = &cobra.Command{
	Use:   "create [name...]",
	Short: "Create storage files that do not exist yet",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStorageCreate,
}

var storageReadCmd = &cobra.Command{
	Use:   "read [name]",
	Short: "Print the content of a storage file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStorageRead,
}

var storageWriteCmd = &cobra.Command{
	Use:   "write [name] [value|-]",
	Short: "Replace the content of a storage file",
	Long:  `Replaces the content atomically. Use "-" to read the value from stdin. JSON files require a JSON value.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runStorageWrite,
}

func init() {
	storageCmd.PersistentFlags().StringVarP(&storageDir, "dir", "d", "", "Storage directory (default from config)")
	storageCmd.PersistentFlags().StringVarP(&storageExtension, "ext", "e", storage.DefaultExtension, "File extension; json enables JSON encoding")
	storageCmd.PersistentFlags().StringVarP(&storageLocation, "location", "l", "", "Directory for this file, overriding --dir")
	storageCreateCmd.Flags().StringVarP(&storageInitial, "initial", "i", "", "Initial JSON content for new files")

	storageCmd.AddCommand(storageCreateCmd)
	storageCmd.AddCommand(storageReadCmd)
	storageCmd.AddCommand(storageWriteCmd)
	rootCmd.AddCommand(storageCmd)
}

func openStorage() (*storage.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dir := storageDir
	if dir == "" {
		dir = cfg.Storage.Dir
	}

	logger, err := logging.New(logging.Config{Level: "warn", OutputPaths: []string{"stderr"}})
	if err != nil {
		return nil, nil, err
	}
	m, err := storage.NewManager(dir,
		storage.WithLogger(logger.Logger),
		storage.WithParallelism(cfg.Storage.Parallelism),
	)
	if err != nil {
		_ = logger.Close()
		return nil, nil, err
	}
	return m, func() { _ = logger.Close() }, nil
}

func storageConfig(name string) storage.Config {
	return storage.Config{Name: name, Extension: storageExtension, Location: storageLocation}
}

// register makes an existing file known to m.
func register(ctx context.Context, m *storage.Manager, name string) error {
	result, err := m.CreateStorage(ctx, storageConfig(name))
	if err != nil {
		return err
	}
	return result.Err()
}

func runStorageCreate(cmd *cobra.Command, args []string) error {
	m, done, err := openStorage()
	if err != nil {
		return err
	}
	defer done()

	var initial any
	if storageInitial != "" {
		if err := sonic.UnmarshalString(storageInitial, &initial); err != nil {
			return fmt.Errorf("invalid --initial value: %w", err)
		}
	}

	configs := make([]storage.Config, len(args))
	for i, name := range args {
		configs[i] = storageConfig(name)
		configs[i].InitialState = initial
	}

	result, err := m.CreateStorage(cmd.Context(), configs...)
	if result != nil {
		for _, o := range result.Outcomes {
			if o.Err != nil {
				cmd.Printf("%-10s %s: %v\n", o.Status, o.Name, o.Err)
				continue
			}
			cmd.Printf("%-10s %s\n", o.Status, o.Path)
		}
	}
	if err != nil {
		return err
	}
	return result.Err()
}

func runStorageRead(cmd *cobra.Command, args []string) error {
	m, done, err := openStorage()
	if err != nil {
		return err
	}
	defer done()

	name := args[0]
	if err := register(cmd.Context(), m, name); err != nil {
		return err
	}
	value, err := m.Read(cmd.Context(), name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if data, ok := value.([]byte); ok {
		_, err = out.Write(data)
		return err
	}
	pretty, err := sonic.ConfigStd.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(pretty))
	return err
}

func runStorageWrite(cmd *cobra.Command, args []string) error {
	m, done, err := openStorage()
	if err != nil {
		return err
	}
	defer done()

	name, raw := args[0], []byte(args[1])
	if args[1] == "-" {
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	if err := register(cmd.Context(), m, name); err != nil {
		return err
	}

	var value any = raw
	if storage.FormatForExtension(storageExtension) == storage.FormatJSON {
		if err := sonic.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("value is not valid JSON: %w", err)
		}
	}
	if _, err := m.Write(cmd.Context(), name, value); err != nil {
		return err
	}
	cmd.Printf("wrote %s\n", m.Path(name))
	return nil
}
