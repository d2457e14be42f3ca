// Package intake validates and stages files before a message is sent.
package intake

import (
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
)

// DefaultAccept mirrors the widget's file picker filter.
var DefaultAccept = []string{
	"image/*", ".pdf", ".doc", ".docx", ".txt", ".md", ".csv",
	".xls", ".xlsx", ".ppt", ".pptx", ".json",
}

// Limits configures the staging rules.
type Limits struct {
	MaxFiles      int
	MaxFileSizeMB float64
	// Accept lists MIME patterns ("image/*", "application/pdf") and
	// extensions (".pdf"). Empty accepts everything.
	Accept []string
}

// DefaultLimits returns the stock widget limits.
func DefaultLimits() Limits {
	return Limits{MaxFiles: 5, MaxFileSizeMB: 10, Accept: DefaultAccept}
}

func (l Limits) maxBytes() int64 {
	return int64(l.MaxFileSizeMB * 1024 * 1024)
}

// Reason says why a batch was cut short or refused.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPerSelection
	ReasonTotal
	ReasonTooLarge
	ReasonUnsupportedType
)

// Staged is a file waiting to be sent. ID stays stable when other entries
// are removed.
type Staged struct {
	ID      string
	File    File
	Preview string
}

// LocalAttachment describes the staged file without uploading it.
func (s Staged) LocalAttachment() chat.Attachment {
	url := s.Preview
	if url == "" {
		url = "local://" + s.ID + "/" + s.File.Name
	}
	return chat.Attachment{
		Name:    s.File.Name,
		URL:     url,
		MIME:    s.mime(),
		Size:    s.File.Size,
		IsImage: s.File.IsImage(),
	}
}

// SizeLabel formats the file size for display.
func (s Staged) SizeLabel() string {
	return humanize.IBytes(uint64(max(s.File.Size, 0)))
}

func (s Staged) mime() string {
	if s.File.MIME == "" {
		return octetStream
	}
	return s.File.MIME
}

// Result is the outcome of one Stage call. Notice is set whenever the user
// should be told something, even if some files were accepted.
type Result struct {
	Accepted []Staged
	Reason   Reason
	Notice   *errs.Error
}

// Stage applies the staging rules to candidates given what is already
// staged. It never mutates current.
func Stage(l Limits, candidates []File, current []Staged) Result {
	var res Result

	if len(candidates) > l.MaxFiles {
		res.Reason = ReasonPerSelection
		res.Notice = errs.Validation(fmt.Sprintf("You can attach up to %d files per selection.", l.MaxFiles))
		return res
	}

	remaining := max(0, l.MaxFiles-len(current))
	batch := candidates
	if len(batch) > remaining {
		batch = batch[:remaining]
	}
	if len(candidates)+len(current) > l.MaxFiles {
		res.Reason = ReasonTotal
		res.Notice = errs.Validation(fmt.Sprintf("You can attach up to %d files total.", l.MaxFiles))
	}

	limit := l.maxBytes()
	for _, f := range batch {
		if f.Size > limit {
			res.Reason = ReasonTooLarge
			res.Notice = errs.Validation(fmt.Sprintf("Each file must be ≤ %s MB.", formatMB(l.MaxFileSizeMB)))
			return res
		}
	}
	for _, f := range batch {
		if !accepts(l.Accept, f) {
			res.Reason = ReasonUnsupportedType
			res.Notice = errs.Validation(fmt.Sprintf("Unsupported file type: %s", f.Name))
			return res
		}
	}

	res.Accepted = make([]Staged, 0, len(batch))
	for _, f := range batch {
		res.Accepted = append(res.Accepted, Staged{
			ID:      uuid.NewString(),
			File:    f,
			Preview: preview(f),
		})
	}
	return res
}

func formatMB(mb float64) string {
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("%d", int64(mb))
	}
	return fmt.Sprintf("%g", mb)
}

func accepts(patterns []string, f File) bool {
	if len(patterns) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	mimeType := strings.ToLower(f.MIME)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "."):
			if ext == p {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(mimeType, strings.TrimSuffix(p, "*")) {
				return true
			}
		case p == mimeType:
			return true
		}
	}
	return false
}

// preview builds a data URI for images. Other files keep metadata only.
func preview(f File) string {
	if !f.IsImage() || f.Open == nil {
		return ""
	}
	rc, err := f.Open()
	if err != nil {
		log.Debug().Err(err).Str("component", "intake").Str("file", f.Name).Msg("preview unavailable")
		return ""
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.Debug().Err(err).Str("component", "intake").Str("file", f.Name).Msg("preview unavailable")
		return ""
	}
	return "data:" + f.MIME + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Intake is the staged-file list of one widget instance. It is not safe for
// concurrent use; the owning session serialises access.
type Intake struct {
	limits Limits
	staged []Staged
}

// New returns an empty Intake.
func New(limits Limits) *Intake {
	return &Intake{limits: limits}
}

// Limits returns the configured limits.
func (in *Intake) Limits() Limits {
	return in.limits
}

// Add stages candidates and returns what happened.
func (in *Intake) Add(candidates []File) Result {
	res := Stage(in.limits, candidates, in.staged)
	in.staged = append(in.staged, res.Accepted...)
	return res
}

// Remove drops the entry at idx. Out-of-range indexes are ignored.
func (in *Intake) Remove(idx int) bool {
	if idx < 0 || idx >= len(in.staged) {
		return false
	}
	in.staged = append(in.staged[:idx:idx], in.staged[idx+1:]...)
	return true
}

// RemoveIDs drops the entries with the given ids, keeping the rest in order.
func (in *Intake) RemoveIDs(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := in.staged[:0:0]
	for _, s := range in.staged {
		if _, ok := drop[s.ID]; !ok {
			kept = append(kept, s)
		}
	}
	in.staged = kept
}

// Files returns a copy of the staged list.
func (in *Intake) Files() []Staged {
	return append([]Staged(nil), in.staged...)
}

// Len returns the number of staged files.
func (in *Intake) Len() int {
	return len(in.staged)
}
