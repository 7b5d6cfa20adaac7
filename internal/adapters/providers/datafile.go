package providers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

var (
	pinPathRe  = regexp.MustCompile(`/pin/(\d+)`)
	hashPathRe = regexp.MustCompile(`/([a-f0-9]{32,})`)
	fileNameRe = regexp.MustCompile(`/([^/]+)\.(?:jpg|jpeg|png|webp)`)
)

// ColumnMapping names the CSV header holding each candidate field.
// Empty entries are ignored.
type ColumnMapping struct {
	ImageURL    string `yaml:"image_url"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Creator     string `yaml:"creator"`
	PinID       string `yaml:"pin_id"`
	Saves       string `yaml:"saves"`
}

// DefaultColumnMapping matches the column names of a scraper's CSV export.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		ImageURL:    "image_url",
		Title:       "description",
		Description: "description",
		Creator:     "board/owner/username",
	}
}

// DataFile serves candidates from a previously exported JSON or CSV file.
type DataFile struct {
	path    string
	columns ColumnMapping
}

// NewDataFile creates a static file provider. The file is read on every search
// so a refreshed export is picked up without restarting.
func NewDataFile(path string, columns ColumnMapping) *DataFile {
	if columns.ImageURL == "" {
		columns = DefaultColumnMapping()
	}
	return &DataFile{path: path, columns: columns}
}

// Name returns the provider name.
func (d *DataFile) Name() string {
	return "data_file"
}

// Search loads the file, keeps rows matching at least half of the query
// words, and returns up to maxResults of them.
func (d *DataFile) Search(ctx context.Context, query string, maxResults int) entities.ProviderResult {
	if d.path == "" {
		return entities.Failed(fmt.Errorf("data file: %w: no path configured", entities.ErrProviderUnavailable))
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		return entities.Failed(fmt.Errorf("reading data file: %w", err))
	}

	var cands []entities.RawCandidate
	switch strings.ToLower(filepath.Ext(d.path)) {
	case ".csv":
		cands, err = d.parseCSV(data)
	default:
		cands, err = parseJSONItems(data)
	}
	if err != nil {
		return entities.Failed(err)
	}

	if strings.TrimSpace(query) != "" {
		cands = filterByQuery(cands, query)
	}
	if maxResults > 0 && len(cands) > maxResults {
		cands = cands[:maxResults]
	}

	logrus.WithFields(logrus.Fields{
		"file":    d.path,
		"query":   query,
		"results": len(cands),
	}).Debug("Loaded candidates from data file")
	return entities.Succeeded(cands)
}

func parseJSONItems(data []byte) ([]entities.RawCandidate, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding data file: %w", err)
	}

	var items []any
	switch v := root.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range []string{"results", "items", "data"} {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
		}
	}

	cands := make([]entities.RawCandidate, 0, len(items))
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		imageURL := stringField(item, "image_url", "image", "imageUrl")
		if imageURL == "" {
			if orig := nested(item, "media", "images", "originals"); orig != nil {
				imageURL = stringField(orig, "url")
			}
		}
		if imageURL == "" {
			continue
		}

		id := stringField(item, "pin_id", "id")
		if id == "" {
			id = extractPinID(imageURL)
		}
		desc := stringField(item, "description")
		title := stringField(item, "title")
		if title == "" {
			title = truncate(desc, 100)
		}
		link := stringField(item, "pin_url")
		if link == "" {
			link = pinURL(id)
		}

		cands = append(cands, entities.RawCandidate{
			ImageURL:    imageURL,
			Title:       title,
			Source:      entities.SourceStaticFile,
			PinID:       id,
			PinURL:      link,
			Description: desc,
			Creator:     stringField(item, "creator", "username"),
			Saves:       intField(item, "saves"),
		})
	}
	return cands, nil
}

func (d *DataFile) parseCSV(data []byte) ([]entities.RawCandidate, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	col := func(row []string, name string) string {
		if name == "" {
			return ""
		}
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var cands []entities.RawCandidate
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		imageURL := col(row, d.columns.ImageURL)
		if imageURL == "" {
			continue
		}
		id := col(row, d.columns.PinID)
		if id == "" {
			id = extractPinID(imageURL)
		}
		desc := col(row, d.columns.Description)
		title := col(row, d.columns.Title)
		if title == "" {
			title = truncate(desc, 100)
		}
		if title == "" {
			title = "Pinterest Pin"
		}
		saves, _ := strconv.Atoi(col(row, d.columns.Saves))

		cands = append(cands, entities.RawCandidate{
			ImageURL:    imageURL,
			Title:       truncate(title, 200),
			Source:      entities.SourceStaticFile,
			PinID:       id,
			PinURL:      pinURL(id),
			Description: truncate(desc, 500),
			Creator:     col(row, d.columns.Creator),
			Saves:       saves,
		})
	}
	return cands, nil
}

// extractPinID derives a stable id from a pin URL, a hashed image path or
// the image file name.
func extractPinID(u string) string {
	if m := pinPathRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := hashPathRe.FindStringSubmatch(u); m != nil {
		return m[1][:15]
	}
	if m := fileNameRe.FindStringSubmatch(u); m != nil {
		return truncate(m[1], 15)
	}
	return ""
}

// filterByQuery keeps candidates whose title and description contain at
// least half of the query words.
func filterByQuery(cands []entities.RawCandidate, query string) []entities.RawCandidate {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		words[w] = struct{}{}
	}
	if len(words) == 0 {
		return cands
	}

	out := cands[:0:0]
	for _, c := range cands {
		text := strings.ToLower(c.Title + " " + c.Description)
		matched := 0
		for w := range words {
			if strings.Contains(text, w) {
				matched++
			}
		}
		if float64(matched) >= float64(len(words))*0.5 {
			out = append(out, c)
		}
	}
	return out
}
