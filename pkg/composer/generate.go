// SPDX-License-Identifier: MPL-2.0

package composer

import (
	"fmt"

	"dnaforge/internal/issue"
	"dnaforge/pkg/dnamod"
)

// GenerateFiles drives each resolved module's generator in install order:
// initialize, configure with the merged validated config, validate, generate.
// The union of produced files is post-processed for path collisions: files
// declaring the merge policy concatenate in arrival order, anything else
// keeps the last writer. Modules without a generator are skipped.
func (e *Engine) GenerateFiles(result *Result, gctx dnamod.GenerateContext) ([]dnamod.GeneratedFile, error) {
	if result == nil || !result.Valid {
		return nil, issue.NewErrorContext().
			WithOperation("generate files").
			WithSuggestion("run compose first and fix the reported errors").
			Wrap(fmt.Errorf("composition is not valid")).
			BuildError()
	}

	var produced []dnamod.GeneratedFile
	for _, m := range result.Modules {
		gen := m.Generator
		if gen == nil {
			continue
		}

		ctx := gctx
		ctx.Config = result.MergedConfig[m.ID]

		if err := gen.Initialize(ctx); err != nil {
			return nil, e.generateError(m, "initialize", err)
		}
		if err := gen.Configure(ctx.Config); err != nil {
			return nil, e.generateError(m, "configure", err)
		}
		if err := gen.Validate(); err != nil {
			return nil, e.generateError(m, "validate", err)
		}
		files, err := gen.Generate()
		if err != nil {
			return nil, e.generateError(m, "generate", err)
		}
		produced = append(produced, files...)
	}

	return mergeCollisions(produced), nil
}

func (e *Engine) generateError(m *dnamod.Module, phase string, err error) error {
	e.logger.Error("file generation failed", "module", m.ID, "phase", phase, "error", err)
	return issue.NewErrorContext().
		WithOperation(phase + " module files").
		WithResource(m.Key()).
		WithSuggestion("check the module's configuration and framework support").
		Wrap(err).
		BuildError()
}

// mergeCollisions resolves path collisions across the produced file set
// while preserving first-arrival path order.
func mergeCollisions(files []dnamod.GeneratedFile) []dnamod.GeneratedFile {
	byPath := make(map[string]int, len(files))
	var out []dnamod.GeneratedFile

	for _, f := range files {
		idx, seen := byPath[f.Path]
		if !seen {
			byPath[f.Path] = len(out)
			out = append(out, f)
			continue
		}
		if f.Policy == dnamod.PolicyMerge {
			out[idx].Content += "\n" + f.Content
			continue
		}
		// Last writer wins for every non-merge policy.
		out[idx] = f
	}
	return out
}
