package services

import (
	"context"
	"fmt"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
)

// AttachmentService links uploaded objects to their message or DM row.
type AttachmentService struct {
	attachments *repositories.AttachmentRepository
}

func NewAttachmentService(attachments *repositories.AttachmentRepository) *AttachmentService {
	return &AttachmentService{attachments: attachments}
}

// CreateAttachments inserts the whole batch at once, keyed by the target kind.
func (s *AttachmentService) CreateAttachments(ctx context.Context, target upload.Target, files []upload.Uploaded) error {
	if len(files) == 0 {
		return nil
	}
	rows := make([]models.Attachment, len(files))
	for i, f := range files {
		rows[i] = models.Attachment{
			StoragePath: f.StoragePath,
			FileName:    f.FileName,
			FileType:    f.FileType,
			FileSize:    f.FileSize,
		}
		id := target.ID
		switch target.Kind {
		case upload.MessageTarget:
			rows[i].MessageID = &id
		case upload.DirectMessageTarget:
			rows[i].DirectMessageID = &id
		default:
			return fmt.Errorf("unknown attachment target kind %d", target.Kind)
		}
	}
	return s.attachments.CreateBatch(ctx, rows)
}
