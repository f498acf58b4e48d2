// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/pkg/core"
)

// SessionExport is the root JSON structure consumed by the web frontend
type SessionExport struct {
	ExtensionVersion  string                  `json:"extensionVersion"`
	ServiceVersion    string                  `json:"serviceVersion"`
	SessionKey        string                  `json:"sessionKey"`
	SiteName          string                  `json:"siteName"`
	SiteRevision      string                  `json:"siteRevision"`
	Operator          string                  `json:"operator"`
	DeviceModel       string                  `json:"deviceModel"`
	StartTime         string                  `json:"startTime"`
	EndTime           string                  `json:"endTime"`
	Tag               string                  `json:"tag"`
	Alignments        []core.Alignment        `json:"alignments"`
	CalibrationPoints []core.CalibrationPoint `json:"calibrationPoints"`
	Annotations       []core.Annotation       `json:"annotations"`
	Trail             [][]any                 `json:"trail"`
	TrailMap          string                  `json:"trailMap,omitempty"`
	Telemetry         []core.TelemetryEvent   `json:"telemetry"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	siteName := strings.ReplaceAll(b.site.Name, " ", "_")
	siteName = strings.ReplaceAll(siteName, ":", "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", siteName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", siteName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		ExtensionVersion:  b.session.ExtensionVersion,
		ServiceVersion:    b.session.ServiceVersion,
		SessionKey:        b.session.SessionKey,
		SiteName:          b.site.Name,
		SiteRevision:      b.site.Revision,
		Operator:          b.session.Operator,
		DeviceModel:       b.session.DeviceModel,
		StartTime:         b.session.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		EndTime:           b.session.EndTime.Format("2006-01-02T15:04:05Z07:00"),
		Tag:               b.session.Tag,
		Alignments:        make([]core.Alignment, 0, len(b.alignments)),
		CalibrationPoints: make([]core.CalibrationPoint, 0, len(b.calibrationPoints)),
		Annotations:       make([]core.Annotation, 0, len(b.annotations)),
		Trail:             make([][]any, 0, len(b.trail)),
		Telemetry:         make([]core.TelemetryEvent, 0, len(b.telemetry)),
	}

	export.Alignments = append(export.Alignments, b.alignments...)
	export.CalibrationPoints = append(export.CalibrationPoints, b.calibrationPoints...)
	export.Telemetry = append(export.Telemetry, b.telemetry...)

	for id := uint(1); id <= b.idCounter; id++ {
		if a, ok := b.annotations[id]; ok {
			export.Annotations = append(export.Annotations, *a)
		}
	}

	// Compact trail rows: [timestamp, [x, y, z], yaw, clutched]
	for _, p := range b.trail {
		export.Trail = append(export.Trail, []any{
			p.Timestamp,
			[]float64{p.Position.X, p.Position.Y, p.Position.Z},
			p.Yaw,
			boolToInt(p.Clutched),
		})
	}

	// Georeferenced sites also get the trail as a projected map linestring
	if b.geo != nil && b.geo.Enabled() && len(b.trail) >= 2 {
		points := make([]r3.Vector, 0, len(b.trail))
		for _, p := range b.trail {
			points = append(points, p.Position)
		}
		if ls, err := geo.TrailLineString(b.geo, points); err == nil {
			export.TrailMap = ls.AsText()
		}
	}

	return export
}

func (b *Backend) writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetExportedFilePath returns the path of the last exported session file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns upload metadata for the last exported session
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := core.UploadMetadata{}
	if b.session != nil {
		meta.SiteName = b.site.Name
		meta.SessionKey = b.session.SessionKey
		meta.Tag = b.session.Tag
		if !b.session.EndTime.IsZero() {
			meta.DurationSeconds = b.session.EndTime.Sub(b.session.StartTime).Seconds()
		}
	}
	return meta
}
