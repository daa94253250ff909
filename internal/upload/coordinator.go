// Package upload sequences attachment uploads for one send attempt. A batch is
// all-or-nothing with respect to stored objects: any failure before the
// attachment rows are linked deletes what this batch already uploaded.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDeniedExtension = errors.New("file type is not allowed")
	ErrFileTooLarge    = errors.New("file is too large")
	ErrAttachmentLink  = errors.New("failed to link attachments")
)

// DefaultDeniedExtensions are rejected at selection time.
var DefaultDeniedExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".msi", ".scr", ".ps1", ".vbs", ".jar", ".dll", ".apk", ".sh",
}

// File is one selected file waiting to be uploaded.
type File struct {
	Name string `validate:"required,max=255,safe_ext"`
	Type string
	Size int64 `validate:"gte=0"`
	Body io.Reader
}

// Rejection names a file refused at selection time and why.
type Rejection struct {
	FileName string
	Err      error
}

// Uploaded describes an object stored for this batch.
type Uploaded struct {
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
}

// TargetKind selects which foreign key the attachment rows carry.
type TargetKind int

const (
	MessageTarget TargetKind = iota
	DirectMessageTarget
)

// Target is the row the attachments belong to.
type Target struct {
	Kind TargetKind
	ID   string
}

// ObjectStore is the object storage capability.
type ObjectStore interface {
	Put(ctx context.Context, storagePath string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, storagePaths ...string) error
	PublicURL(storagePath string) string
}

// AttachmentWriter inserts attachment rows as one batch.
type AttachmentWriter interface {
	CreateAttachments(ctx context.Context, target Target, files []Uploaded) error
}

// Options tune a Coordinator. Zero values pick defaults.
type Options struct {
	DeniedExtensions []string
	MaxFileSize      int64
	KeyFunc          func(fileName string) string
	Logger           *zap.Logger
}

type Coordinator struct {
	store    ObjectStore
	links    AttachmentWriter
	denied   map[string]bool
	maxSize  int64
	keyFunc  func(string) string
	logger   *zap.Logger
	validate *validator.Validate
}

func NewCoordinator(store ObjectStore, links AttachmentWriter, opts Options) *Coordinator {
	c := &Coordinator{
		store:   store,
		links:   links,
		denied:  make(map[string]bool),
		maxSize: opts.MaxFileSize,
		keyFunc: opts.KeyFunc,
		logger:  opts.Logger,
	}
	exts := opts.DeniedExtensions
	if len(exts) == 0 {
		exts = DefaultDeniedExtensions
	}
	for _, e := range exts {
		c.denied[normalizeExt(e)] = true
	}
	if c.keyFunc == nil {
		c.keyFunc = func(name string) string {
			return path.Join("attachments", uuid.NewString(), name)
		}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	c.validate = validator.New()
	_ = c.validate.RegisterValidation("safe_ext", func(fl validator.FieldLevel) bool {
		return !c.denied[normalizeExt(path.Ext(fl.Field().String()))]
	})
	return c
}

// Screen splits the selection into accepted files and rejections with reasons.
func (c *Coordinator) Screen(files []File) ([]File, []Rejection) {
	var accepted []File
	var rejected []Rejection
	for _, f := range files {
		if err := c.check(f); err != nil {
			rejected = append(rejected, Rejection{FileName: f.Name, Err: err})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func (c *Coordinator) check(f File) error {
	if err := c.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "safe_ext" {
					return ErrDeniedExtension
				}
			}
			return fmt.Errorf("invalid file %q: %s", f.Name, verrs[0].Tag())
		}
		return err
	}
	if c.maxSize > 0 && f.Size > c.maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// Send uploads files in order, then calls create to insert the message or DM
// row, then links the attachments to the returned id. No row is created when
// the upload phase fails, and uploaded objects are deleted when any later
// step fails.
func (c *Coordinator) Send(ctx context.Context, kind TargetKind, files []File, create func(ctx context.Context) (string, error)) (string, []Uploaded, error) {
	for _, f := range files {
		if err := c.check(f); err != nil {
			return "", nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}

	uploaded, err := c.uploadAll(ctx, files)
	if err != nil {
		return "", nil, err
	}

	id, err := create(ctx)
	if err != nil {
		c.rollback(ctx, uploaded)
		return "", nil, err
	}

	if len(uploaded) > 0 {
		if err := c.links.CreateAttachments(ctx, Target{Kind: kind, ID: id}, uploaded); err != nil {
			c.rollback(ctx, uploaded)
			return id, nil, fmt.Errorf("%w: %v", ErrAttachmentLink, err)
		}
	}
	return id, uploaded, nil
}

func (c *Coordinator) uploadAll(ctx context.Context, files []File) ([]Uploaded, error) {
	uploaded := make([]Uploaded, 0, len(files))
	for _, f := range files {
		key := c.keyFunc(sanitizeName(f.Name))
		if err := c.store.Put(ctx, key, f.Body, f.Size, f.Type); err != nil {
			c.rollback(ctx, uploaded)
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		uploaded = append(uploaded, Uploaded{
			StoragePath: key,
			FileName:    f.Name,
			FileType:    f.Type,
			FileSize:    f.Size,
		})
	}
	return uploaded, nil
}

// rollback deletes objects even if ctx was canceled.
func (c *Coordinator) rollback(ctx context.Context, uploaded []Uploaded) {
	if len(uploaded) == 0 {
		return
	}
	paths := make([]string, len(uploaded))
	for i, u := range uploaded {
		paths[i] = u.StoragePath
	}
	if err := c.store.Delete(context.WithoutCancel(ctx), paths...); err != nil {
		c.logger.Error("attachment rollback failed",
			zap.Strings("paths", paths),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("attachment batch rolled back", zap.Int("count", len(paths)))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
