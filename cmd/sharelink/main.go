package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sharelink/internal/client"
)

var (
	title    string
	password string
	expires  time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "sharelink",
	Short:         "Share files through a sharelink server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files or directories and print the share link",
	Long: "Upload one file as it is, or several files and directories bundled\n" +
		"into a single zip archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := client.ParseArgs(args)
		if err != nil {
			return err
		}

		bundle, err := client.NewBundle(paths, time.Now())
		if err != nil {
			return fmt.Errorf("failed to prepare upload: %w", err)
		}
		if bundle.Archived() {
			fmt.Printf("✓ Compressed to %s (%s)\n", bundle.Name, humanize.IBytes(uint64(bundle.Size)))
		}

		opts := client.UploadOptions{
			UserID:    viper.GetString("user_id"),
			UserEmail: viper.GetString("email"),
			Title:     title,
			Private:   password != "",
			Password:  password,
		}
		if opts.Title == "" {
			opts.Title = bundle.Name
		}
		if expires > 0 {
			opts.Expiration = time.Now().Add(expires)
		}

		c := newClient()
		res, err := c.Upload(cmd.Context(), bundle, opts)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Uploaded %s (%s)\n", bundle.Name, humanize.IBytes(uint64(bundle.Size)))
		fmt.Printf("  Link: %s\n", c.LinkURL(res.ID))
		if opts.Private {
			fmt.Println("  Password protected")
		}
		if !opts.Expiration.IsZero() {
			fmt.Printf("  Expires %s\n", humanize.Time(opts.Expiration))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Links:   %s (%s active)\n", humanize.Comma(stats.TotalLinks), humanize.Comma(stats.ActiveLinks))
		fmt.Printf("Views:   %s\n", humanize.Comma(stats.TotalViews))
		fmt.Printf("Storage: %s\n", humanize.IBytes(uint64(stats.StorageUsed)))
		return nil
	},
}

var viewsCmd = &cobra.Command{
	Use:   "views <id>",
	Short: "Show how often a link was viewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().AccessCount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s views\n", humanize.Comma(n))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a link and its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Deleted")
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:8080", "sharelink server URL (env SHARELINK_SERVER)")
	pf.String("user-id", "", "owner id sent with uploads (env SHARELINK_USER_ID)")
	pf.String("email", "", "owner email sent with uploads (env SHARELINK_EMAIL)")

	viper.SetEnvPrefix("sharelink")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("server", pf.Lookup("server"))
	viper.BindPFlag("user_id", pf.Lookup("user-id"))
	viper.BindPFlag("email", pf.Lookup("email"))

	uploadCmd.Flags().StringVarP(&title, "title", "t", "", "link title (defaults to the file name)")
	uploadCmd.Flags().StringVarP(&password, "password", "p", "", "make the link private with this password")
	uploadCmd.Flags().DurationVarP(&expires, "expires", "e", 0, "expire the link after this long, e.g. 72h")

	rootCmd.AddCommand(uploadCmd, statsCmd, viewsCmd, deleteCmd)
}

func newClient() *client.Client {
	return client.New(viper.GetString("server"), nil)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
