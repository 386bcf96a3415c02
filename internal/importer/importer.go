// Package importer reads a question script from a file and, per prompt,
// drives the LLM Gateway and Metadata Builder to produce an enriched
// question.Question.
//
// Grounded on spec.md §4.4 and §6 (input file formats), and on the teacher's
// internal/entity/vttimport.go format-dispatch shape: one parse function per
// supported format, all converging on a single plain-text sequence, with
// import best-effort and format errors rejecting the whole request.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/metadata"
	"github.com/simonealverdi/interviewer/internal/question"
)

// Format identifies a supported question-script file format.
type Format string

const (
	FormatDocx Format = "docx"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ErrImportFormat is wrapped by every parse failure, corresponding to
// spec.md §7's ImportFormatError: the whole request is rejected with a
// user-visible message.
var ErrImportFormat = fmt.Errorf("importer: unrecognised or malformed input")

// DetectFormat infers a Format from a filename's extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return FormatDocx, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported extension %q", ErrImportFormat, filepath.Ext(filename))
	}
}

// ExtractPrompts reads r as the given format and returns the ordered,
// non-empty raw prompt strings it contains. It performs no LLM calls — this
// is purely the file-format half of spec.md §4.4.
func ExtractPrompts(r io.Reader, format Format) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("importer: read input: %w", err)
	}

	var prompts []string
	switch format {
	case FormatDocx:
		prompts, err = extractDocx(data)
	case FormatCSV:
		prompts, err = extractCSV(data)
	case FormatXLSX:
		prompts, err = extractXLSX(data)
	case FormatJSON:
		prompts, err = extractJSON(data)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrImportFormat, format)
	}
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// extractDocx reads every paragraph's text from a Word document, in order.
func extractDocx(data []byte) ([]string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", ErrImportFormat, err)
	}
	defer r.Close()

	content := r.Editable().GetContent()

	var prompts []string
	for _, p := range strings.Split(content, "</w:p>") {
		text := stripXMLTags(p)
		text = strings.TrimSpace(text)
		if text != "" {
			prompts = append(prompts, text)
		}
	}
	return prompts, nil
}

// extractCSV reads the first column of every row.
func extractCSV(data []byte) ([]string, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", ErrImportFormat, err)
	}
	prompts := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			prompts = append(prompts, row[0])
		}
	}
	return prompts, nil
}

// extractXLSX reads the first column of the first sheet's rows.
func extractXLSX(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrImportFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx: workbook has no sheets", ErrImportFormat)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrImportFormat, err)
	}
	prompts := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			prompts = append(prompts, row[0])
		}
	}
	return prompts, nil
}

// extractJSON accepts either a top-level array of strings or a top-level
// object whose values are strings (keys are ignored save for ordering).
func extractJSON(data []byte) ([]string, error) {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(obj))
		for _, k := range keys {
			out = append(out, obj[k])
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: json: expected an array of strings or an object of strings", ErrImportFormat)
}

// stripXMLTags removes XML/HTML-style tags from s, leaving only text
// content. Intentionally minimal, mirroring the teacher's stripHTMLTags
// state machine for rich-text fields rather than pulling in a full XML
// parser for plain paragraph text.
func stripXMLTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EnrichPrompt runs the per-prompt half of spec.md §4.4: it calls the LLM
// Gateway's enrichment chat_json, then the Metadata Builder for each
// resulting subtopic's keyword list, and assembles a fully enriched
// question.Question. On an LLMOutputInvalid failure it returns the question
// with prompt text only (empty metadata) alongside the error, per spec.md
// §7 — callers (the background enrichment worker) store it as-is and move on
// rather than aborting the batch.
func EnrichPrompt(ctx context.Context, gw *llmgateway.Gateway, mb *metadata.Builder, prompt string) (question.Question, error) {
	q := question.Question{Prompt: prompt}

	result, err := gw.EnrichQuestion(ctx, prompt)
	if err != nil {
		return q, fmt.Errorf("importer: enrich prompt: %w", err)
	}

	q.PrimaryTopic = result.PrimaryTopic
	q.Subtopics = result.Subtopics
	q.Keywords = result.Keywords
	q.LemmaSets = make([]map[string]struct{}, len(result.Subtopics))
	q.FuzzyNorms = make([]string, len(result.Subtopics))
	q.Vectors = make([][]float32, len(result.Subtopics))

	for i := range result.Subtopics {
		var keywords []string
		if i < len(result.Keywords) {
			keywords = result.Keywords[i]
		}
		md := mb.Build(ctx, keywords)
		q.LemmaSets[i] = md.LemmaSet
		q.FuzzyNorms[i] = md.FuzzyNorm
		q.Vectors[i] = md.UnitVector
	}

	return q, nil
}
