package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"valuemap/server/config"
	"valuemap/server/internal/api"
	"valuemap/server/internal/ingest"
	"valuemap/server/internal/models"
	"valuemap/server/internal/pipeline"
	"valuemap/server/internal/sample"
)

// filterFlags maps command flags onto the query parameters the HTTP API
// accepts, so both surfaces read filters the same way.
var filterFlags = map[string]string{
	"start":     "start",
	"end":       "end",
	"min-price": "minPrice",
	"max-price": "maxPrice",
	"min-error": "minError",
	"max-error": "maxError",
	"q":         "q",
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("file", "", "CSV file to read records from")
	cmd.Flags().Int64("seed", 0, "Generate sample records with this seed instead of reading a file")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "Earliest transaction date (YYYY-MM-DD or epoch millis)")
	cmd.Flags().String("end", "", "Latest transaction date (YYYY-MM-DD or epoch millis)")
	cmd.Flags().String("min-price", "", "Minimum actual price")
	cmd.Flags().String("max-price", "", "Maximum actual price")
	cmd.Flags().String("min-error", "", "Minimum error percentage")
	cmd.Flags().String("max-error", "", "Maximum error percentage")
	cmd.Flags().String("q", "", "Match address, district or community")
}

func getConfig() (*config.Config, *time.Location, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

func getLogger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(cmd.ErrOrStderr())
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// loadRecords reads --file when given, otherwise generates records from
// --seed. One of the two is required.
func loadRecords(cmd *cobra.Command, loc *time.Location, logger *logrus.Logger) ([]*models.PropertyRecord, error) {
	path, _ := cmd.Flags().GetString("file")
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %v", path, err)
		}
		defer f.Close()

		parser := &ingest.Parser{Location: loc, Logger: logger}
		records, err := parser.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return records, nil
	}

	if !cmd.Flags().Changed("seed") {
		return nil, fmt.Errorf("either --file or --seed is required")
	}
	seed, _ := cmd.Flags().GetInt64("seed")
	return sample.NewGenerator(seed, time.Now().In(loc), config.SupportedCities).Generate(), nil
}

func getCriteria(cmd *cobra.Command, cfg *config.Config, loc *time.Location) pipeline.Criteria {
	q := url.Values{}
	for flag, param := range filterFlags {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			q.Set(param, v)
		}
	}
	return api.ParseCriteria(q, cfg.Limits(), loc)
}

// loadFiltered is the common path of the read commands.
func loadFiltered(cmd *cobra.Command) ([]*models.PropertyRecord, *config.Config, error) {
	cfg, loc, err := getConfig()
	if err != nil {
		return nil, nil, err
	}
	records, err := loadRecords(cmd, loc, getLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	return pipeline.Filter(records, getCriteria(cmd, cfg, loc), cfg.Limits()), cfg, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
