// Package resume validates and stores resume uploads attached to proposals.
package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
)

const (
	MaxSize = 5 * 1024 * 1024

	// PublicPrefix is where stored resumes are served from.
	PublicPrefix = "/uploads/resumes/"
)

var allowedTypes = map[string]map[string]bool{
	".pdf":  {"application/pdf": true},
	".doc":  {"application/msword": true},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true},
}

type Upload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// Ref is the public path of a stored resume.
type Ref string

type Ingestor interface {
	Accept(ctx context.Context, u Upload) (Ref, error)
	Discard(ctx context.Context, ref Ref) error
}

// LocalStore keeps resumes on local disk under Dir.
type LocalStore struct {
	Dir string
	log *zap.Logger
	now func() time.Time
}

func NewLocalStore(dir string, log *zap.Logger) *LocalStore {
	return &LocalStore{Dir: dir, log: log, now: time.Now}
}

// Validate checks the declared file metadata without touching the disk.
func Validate(u Upload) error {
	ext := strings.ToLower(filepath.Ext(u.Filename))
	types, ok := allowedTypes[ext]
	if !ok {
		return apperr.New(apperr.KindInvalidFileType, "resume must be a pdf, doc or docx file")
	}
	mt, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil || !types[strings.ToLower(mt)] {
		return apperr.New(apperr.KindInvalidFileType, "resume content type does not match its extension")
	}
	if u.Size > MaxSize {
		return apperr.New(apperr.KindTooLarge, "resume exceeds 5MB")
	}
	return nil
}

func (s *LocalStore) Accept(ctx context.Context, u Upload) (Ref, error) {
	if err := Validate(u); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.Internal("upload cancelled", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", apperr.Internal("failed to create upload dir", err)
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	f, name, err := s.create(ext)
	if err != nil {
		return "", apperr.Internal("failed to store resume", err)
	}
	dst := filepath.Join(s.Dir, name)

	// the declared size is not trusted; stop one byte past the limit
	n, err := io.Copy(f, io.LimitReader(u.Reader, MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxSize {
		err = apperr.New(apperr.KindTooLarge, "resume exceeds 5MB")
	}
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.log.Warn("remove partial resume", zap.String("file", dst), zap.Error(rmErr))
		}
		if apperr.Is(err, apperr.KindTooLarge) {
			return "", err
		}
		return "", apperr.Internal("failed to store resume", err)
	}

	return Ref(PublicPrefix + name), nil
}

// create opens a fresh resume-<unixnano><ext> file, retrying on a name clash.
func (s *LocalStore) create(ext string) (*os.File, string, error) {
	ts := s.now().UnixNano()
	for attempt := 0; attempt < 10; attempt++ {
		name := fmt.Sprintf("resume-%d%s", ts+int64(attempt), ext)
		f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free resume name near %d", ts)
}

// Discard removes a stored resume. Unknown or already removed refs are not
// errors.
func (s *LocalStore) Discard(ctx context.Context, ref Ref) error {
	if ref == "" || !strings.HasPrefix(string(ref), PublicPrefix) {
		return nil
	}
	name := path.Base(strings.TrimPrefix(string(ref), PublicPrefix))
	if name == "." || name == "/" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Internal("failed to discard resume", err)
	}
	return nil
}
