package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hearing-sync/internal/model"
)

var committeesCmd = &cobra.Command{
	Use:   "committees",
	Short: "Manage per-committee sync configuration",
}

var committeesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update committee sync settings from a YAML seed file",
	Long:  `Create or update committee sync settings from a YAML seed file.

A running daemon or serve process picks up changed dedup thresholds on its
next dedup pass. Schedule settings are read at every scheduled run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open committee seed")
		}
		defer f.Close() //nolint:errcheck

		configs, err := parseCommitteeSeed(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.UpsertSyncConfigs(ctx, configs)
		if err != nil {
			return eris.Wrap(err, "committees import")
		}
		zap.L().Info("committee import complete",
			zap.Int("committees", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

var committeesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List committee sync settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		configs, err := st.ListSyncConfigs(ctx, !all)
		if err != nil {
			return eris.Wrap(err, "committees list")
		}
		if len(configs) == 0 {
			_, _ = io.WriteString(os.Stderr, "No committees configured.\n")
			return nil
		}
		formatSyncConfigs(os.Stdout, configs)
		return nil
	},
}

// committeeSeed is the YAML layout accepted by committees import.
type committeeSeed struct {
	Committees []model.SyncConfig `yaml:"committees"`
}

// parseCommitteeSeed decodes and checks a committee seed file. Codes are
// upper-cased; duplicate codes are rejected.
func parseCommitteeSeed(r io.Reader) ([]model.SyncConfig, error) {
	var seed committeeSeed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return nil, eris.Wrap(err, "decode committee seed")
	}
	if len(seed.Committees) == 0 {
		return nil, eris.New("committee seed lists no committees")
	}

	seen := make(map[string]bool, len(seed.Committees))
	out := make([]model.SyncConfig, 0, len(seed.Committees))
	for i, c := range seed.Committees {
		c.CommitteeCode = strings.ToUpper(strings.TrimSpace(c.CommitteeCode))
		switch {
		case c.CommitteeCode == "":
			return nil, eris.Errorf("committee %d: committee_code is required", i+1)
		case seen[c.CommitteeCode]:
			return nil, eris.Errorf("committee %s listed twice", c.CommitteeCode)
		case c.PriorityLevel < 1:
			return nil, eris.Errorf("committee %s: priority_level must be >= 1", c.CommitteeCode)
		case c.SyncFrequencyHours < 0:
			return nil, eris.Errorf("committee %s: sync_frequency_hours must be >= 0", c.CommitteeCode)
		case c.ReviewThreshold > 0 && c.AutoMergeThreshold > 0 && c.ReviewThreshold > c.AutoMergeThreshold:
			return nil, eris.Errorf("committee %s: review_threshold exceeds auto_merge_threshold", c.CommitteeCode)
		}
		seen[c.CommitteeCode] = true
		out = append(out, c)
	}
	return out, nil
}

func init() {
	committeesListCmd.Flags().Bool("all", false, "include inactive committees")

	committeesCmd.AddCommand(committeesImportCmd)
	committeesCmd.AddCommand(committeesListCmd)
	rootCmd.AddCommand(committeesCmd)
}
