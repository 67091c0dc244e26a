// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openapi loads an OpenAPI 3.0/3.1 document and compiles it into
// a MakeMCP tool catalog (components A1 and C4 of the design).
package openapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"

	"github.com/oas2mcp/makemcp/pkg/refresolve"
)

// Document is a loaded OpenAPI document: the libopenapi high-level model
// (used to walk paths/operations/parameters) plus a reference resolver
// over the same raw bytes (used to recover 3.1 $ref-sibling metadata
// that the high-level model discards).
type Document struct {
	Model    *libopenapi.DocumentModel[v3.Document]
	Resolver *refresolve.Resolver
}

// Load fetches an OpenAPI document from a local file path or an
// http(s):// URL, and builds both the libopenapi v3 model and the
// reference resolver from the same bytes.
//
// strictValidation controls what happens when libopenapi's model builder
// reports spec validation errors: true fails the load outright; false
// (the default posture for this bridge) logs a warning and proceeds,
// since partially-invalid specs still often compile usable tools.
func Load(logger *slog.Logger, location string, strictValidation bool) (*Document, error) {
	logger.Info("loading OpenAPI spec", "location", location)

	specBytes, err := loadBytes(location)
	if err != nil {
		return nil, err
	}

	cfg := datamodel.NewDocumentConfiguration()
	cfg.AllowFileReferences = true
	cfg.AllowRemoteReferences = true

	doc, err := libopenapi.NewDocumentWithConfiguration(specBytes, cfg)
	if err != nil {
		return nil, fmt.Errorf("openapi: creating document: %w", err)
	}

	model, errs := doc.BuildV3Model()
	if len(errs) > 0 {
		if strictValidation {
			var msgs []string
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			return nil, fmt.Errorf("openapi: model validation errors: %s", strings.Join(msgs, "; "))
		}
		logger.Warn("OpenAPI validation warnings (permissive mode)", "count", len(errs))
	}

	resolver, err := refresolve.New(specBytes)
	if err != nil {
		return nil, fmt.Errorf("openapi: building reference resolver: %w", err)
	}

	logger.Info("loaded OpenAPI spec", "title", model.Model.Info.Title, "version", model.Model.Info.Version)
	return &Document{Model: model, Resolver: resolver}, nil
}

func loadBytes(location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		resp, err := http.Get(location)
		if err != nil {
			return nil, fmt.Errorf("openapi: fetching spec from URL: %w", err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("openapi: reading spec response: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("openapi: reading spec file: %w", err)
	}
	return b, nil
}

// ForEachOperation walks every path × method in document order, matching
// the teacher's traversal pattern over libopenapi's ordered path/operation maps.
func (d *Document) ForEachOperation(callback func(method, path string, operation *v3.Operation) error) error {
	for pathPairs := d.Model.Model.Paths.PathItems.First(); pathPairs != nil; pathPairs = pathPairs.Next() {
		path := pathPairs.Key()
		pathItem := pathPairs.Value()
		for opPairs := pathItem.GetOperations().First(); opPairs != nil; opPairs = opPairs.Next() {
			if err := callback(opPairs.Key(), path, opPairs.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}
