// Package scaffold creates new Quarkdown project skeletons. The compiler's
// own `create` subcommand is preferred; when the compiler is unavailable a
// builtin minimal template is written instead so project creation still
// works on a machine without the toolchain.
package scaffold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/qmd/internal/compiler"
	qmderrors "github.com/conneroisu/qmd/internal/errors"
	"github.com/conneroisu/qmd/internal/logging"
)

// Manifest is the project metadata file written alongside the scaffold.
type Manifest struct {
	Name     string    `yaml:"name"`
	Template string    `yaml:"template"`
	Created  time.Time `yaml:"created"`
	Main     string    `yaml:"main"`
}

// Result describes what was created.
type Result struct {
	Path         string   `json:"path"`
	Files        []string `json:"files"`
	UsedFallback bool     `json:"used_fallback"`
}

// Scaffolder creates projects.
type Scaffolder struct {
	comp *compiler.Compiler
	log  logging.Logger
}

// New creates a scaffolder.
func New(comp *compiler.Compiler, log logging.Logger) *Scaffolder {
	if log == nil {
		log = logging.Nop()
	}
	return &Scaffolder{comp: comp, log: log.WithComponent("scaffold")}
}

// Create scaffolds a project at path using the named template. An existing
// non-empty directory is a precondition failure.
func (s *Scaffolder) Create(ctx context.Context, path, template string) (*Result, error) {
	if path == "" {
		return nil, qmderrors.NewValidationError("ERR_BAD_PATH", "project path is required")
	}
	if entries, err := os.ReadDir(path); err == nil && len(entries) > 0 {
		return nil, qmderrors.NewValidationError("ERR_PATH_EXISTS",
			fmt.Sprintf("directory %s already exists and is not empty", path))
	}
	if template == "" {
		template = "basic"
	}

	usedFallback := false
	out, err := s.comp.CreateProject(ctx, path, template)
	if err != nil || out.ExitCode != 0 {
		if err != nil {
			s.log.Warn(ctx, err, "compiler scaffold unavailable, using builtin template")
		} else {
			s.log.Warn(ctx, nil, "compiler scaffold failed, using builtin template",
				"exit_code", out.ExitCode, "stderr", out.Stderr)
		}
		if err := writeBuiltin(path, template); err != nil {
			return nil, err
		}
		usedFallback = true
	}

	if err := s.writeManifest(path, template); err != nil {
		return nil, err
	}

	files, err := listFiles(path)
	if err != nil {
		return nil, qmderrors.NewInternalError("could not enumerate scaffolded files", err)
	}

	s.log.Info(ctx, "project created", "path", path, "template", template, "fallback", usedFallback)
	return &Result{Path: path, Files: files, UsedFallback: usedFallback}, nil
}

func (s *Scaffolder) writeManifest(path, template string) error {
	m := Manifest{
		Name:     filepath.Base(path),
		Template: template,
		Created:  time.Now().UTC(),
		Main:     "main.qmd",
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return qmderrors.NewInternalError("could not encode project manifest", err)
	}
	if err := os.WriteFile(filepath.Join(path, "qmd.yml"), data, 0o644); err != nil {
		return qmderrors.NewInternalError("could not write project manifest", err)
	}
	return nil
}

const builtinMain = `.docname {%s}
.doctype {plain}
.theme {paperwhite}

# %s

Welcome to your new Quarkdown document.
`

// writeBuiltin lays down the minimal skeleton when the compiler cannot.
func writeBuiltin(path, template string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return qmderrors.NewInternalError("could not create project directory", err)
	}
	name := filepath.Base(path)
	main := fmt.Sprintf(builtinMain, name, name)
	if template != "basic" {
		main = fmt.Sprintf(".doctype {%s}\n\n", template) + main
	}
	if err := os.WriteFile(filepath.Join(path, "main.qmd"), []byte(main), 0o644); err != nil {
		return qmderrors.NewInternalError("could not write main document", err)
	}
	return nil
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}
