package model

import (
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	EngineGemini = "gemini"
	EngineGroq   = "groq"

	PDFEnginePDF2Docx = "pdf2docx"
	PDFEngineAspose   = "aspose"

	DefaultServerURL  = "http://127.0.0.1:5000"
	DefaultTargetLang = "es"
	DefaultTone       = "professional"
	DefaultTimeout    = 30 * time.Second
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int      `json:"version" yaml:"version"` // fixed 0 for now
	Server  Server   `json:"server" yaml:"server"`
	Job     Job      `json:"job,omitempty" yaml:"job"`
	Accept  []string `json:"accept,omitempty" yaml:"accept"` // nil/empty => docx, pdf
	History History  `json:"history,omitempty" yaml:"history"`
	Output  Output   `json:"output,omitempty" yaml:"output"`
	Service Service  `json:"service,omitempty" yaml:"service"`
}

// Server is the translation server the jobs are submitted to.
type Server struct {
	URL     string `json:"url" yaml:"url"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // applies to non-streaming calls
}

// Job holds the default translation parameters, flags may override them.
type Job struct {
	TargetLang      string `json:"target_lang,omitempty" yaml:"target_lang"`
	Engine          string `json:"engine,omitempty" yaml:"engine"`
	GenerateSummary bool   `json:"generate_summary,omitempty" yaml:"generate_summary"`
	FirstPageOnly   bool   `json:"first_page_only,omitempty" yaml:"first_page_only"`
	Tone            string `json:"tone,omitempty" yaml:"tone"`
	PDFEngine       string `json:"pdf_engine,omitempty" yaml:"pdf_engine"`
}

// History configures the sqlite run history. Empty path disables it.
type History struct {
	Path string `json:"path" yaml:"path"`
}

type Output struct {
	Dir           string `json:"dir,omitempty" yaml:"dir"`
	Download      bool   `json:"download,omitempty" yaml:"download"`
	ExportSummary bool   `json:"export_summary,omitempty" yaml:"export_summary"`
}

type Service struct {
	Verbose bool `json:"verbose,omitempty" yaml:"verbose"`
}

// DefaultConfig returns the configuration stored when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Server: Server{
			URL:     DefaultServerURL,
			Timeout: DefaultTimeout.String(),
		},
		Job: Job{
			TargetLang: DefaultTargetLang,
			Engine:     EngineGemini,
			Tone:       DefaultTone,
			PDFEngine:  PDFEnginePDF2Docx,
		},
		Accept: []string{string(ExtDOCX), string(ExtPDF)},
		Output: Output{
			Dir:      ".",
			Download: true,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// Missing optional values are filled from DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("doctrans.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	out.applyDefaults()
	return out, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Timeout == "" {
		c.Server.Timeout = def.Server.Timeout
	}
	if c.Job.TargetLang == "" {
		c.Job.TargetLang = def.Job.TargetLang
	}
	if c.Job.Engine == "" {
		c.Job.Engine = def.Job.Engine
	}
	if c.Job.Tone == "" {
		c.Job.Tone = def.Job.Tone
	}
	if c.Job.PDFEngine == "" {
		c.Job.PDFEngine = def.Job.PDFEngine
	}
	if len(c.Accept) == 0 {
		c.Accept = def.Accept
	}
	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
}

// Timeout parses Server.Timeout, the schema guarantees the format.
func (c Config) Timeout() (time.Duration, error) {
	if c.Server.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing server.timeout: %w", err)
	}
	return d, nil
}

// JobOptions returns the job parameters configured for submissions.
func (c Config) JobOptions() JobOptions {
	return JobOptions{
		TargetLang:      c.Job.TargetLang,
		Engine:          c.Job.Engine,
		GenerateSummary: c.Job.GenerateSummary,
		FirstPageOnly:   c.Job.FirstPageOnly,
		Tone:            c.Job.Tone,
		PDFEngine:       c.Job.PDFEngine,
	}
}
