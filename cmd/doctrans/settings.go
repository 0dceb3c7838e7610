package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/doctrans/doctrans/internal/model"
)

// flagKeys maps command line flags to config keys they override.
var flagKeys = map[string]string{
	"server":          "server.url",
	"lang":            "job.target_lang",
	"engine":          "job.engine",
	"summary":         "job.generate_summary",
	"first-page-only": "job.first_page_only",
	"tone":            "job.tone",
	"pdf-engine":      "job.pdf_engine",
	"output-dir":      "output.dir",
	"download":        "output.download",
	"export-summary":  "output.export_summary",
}

// settings layers the changed flags of cmd and DOCTRANS_ environment
// variables (e.g. DOCTRANS_JOB_TARGET_LANG) over cfg. The result is
// validated by the config schema again.
func settings(cmd *cobra.Command, cfg model.Config) (model.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCTRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("job.target_lang", cfg.Job.TargetLang)
	v.SetDefault("job.engine", cfg.Job.Engine)
	v.SetDefault("job.generate_summary", cfg.Job.GenerateSummary)
	v.SetDefault("job.first_page_only", cfg.Job.FirstPageOnly)
	v.SetDefault("job.tone", cfg.Job.Tone)
	v.SetDefault("job.pdf_engine", cfg.Job.PDFEngine)
	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.download", cfg.Output.Download)
	v.SetDefault("output.export_summary", cfg.Output.ExportSummary)

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return model.Config{}, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	cfg.Server.URL = v.GetString("server.url")
	cfg.Job.TargetLang = v.GetString("job.target_lang")
	cfg.Job.Engine = v.GetString("job.engine")
	cfg.Job.GenerateSummary = v.GetBool("job.generate_summary")
	cfg.Job.FirstPageOnly = v.GetBool("job.first_page_only")
	cfg.Job.Tone = v.GetString("job.tone")
	cfg.Job.PDFEngine = v.GetString("job.pdf_engine")
	cfg.Output.Dir = v.GetString("output.dir")
	cfg.Output.Download = v.GetBool("output.download")
	cfg.Output.ExportSummary = v.GetBool("output.export_summary")

	var buf bytes.Buffer
	if err := encodeConfig(&buf, cfg); err != nil {
		return model.Config{}, err
	}
	ret, err := model.LoadConfig(&buf)
	if err != nil {
		return model.Config{}, fmt.Errorf("invalid overrides: %s", strings.Join(model.CueErrDetails(err), "; "))
	}
	return ret, nil
}
