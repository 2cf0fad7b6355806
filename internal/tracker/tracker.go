package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/videorag-backend/internal/artifact"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// ArtifactRow is one persisted artifact. The primary key is the
// content-addressed artifact id, so repeated persists of the same logical
// item collapse into one row.
type ArtifactRow struct {
	ArtifactID       string    `gorm:"column:artifact_id;primaryKey;type:varchar(128)"`
	ArtifactType     string    `gorm:"column:artifact_type;type:varchar(64);index"`
	MinioURL         string    `gorm:"column:minio_url;type:text"`
	ParentArtifactID string    `gorm:"column:parent_artifact_id;type:varchar(128);index"`
	TaskName         string    `gorm:"column:task_name;type:varchar(128)"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UserID           string    `gorm:"column:user_id;type:varchar(128)"`
}

func (ArtifactRow) TableName() string { return "artifacts_application" }

// ArtifactLineageRow is one parent-to-child derivation edge.
type ArtifactLineageRow struct {
	ID                 string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	ParentArtifactID   string    `gorm:"column:parent_artifact_id;type:varchar(128);index"`
	ChildArtifactID    string    `gorm:"column:child_artifact_id;type:varchar(128);index"`
	TransformationType string    `gorm:"column:transformation_type;type:varchar(128)"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

func (ArtifactLineageRow) TableName() string { return "artifact_lineage_application" }

// Tracker owns the lineage tables. It is the single writer for artifact
// rows and derivation edges.
type Tracker struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewTracker(log *logger.Logger, db *gorm.DB) *Tracker {
	return &Tracker{log: log.With("service", "ArtifactTracker"), db: db}
}

// SaveArtifact upserts the artifact row and, only when the row is new,
// records the derivation edge from its parent. Re-persisting an existing
// artifact touches nothing.
func (t *Tracker) SaveArtifact(ctx context.Context, rec artifact.Record) error {
	if rec.ArtifactID == "" {
		return fmt.Errorf("save artifact: %w: empty artifact id", errs.ErrInvalidArgument)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ArtifactRow{
			ArtifactID:       rec.ArtifactID,
			ArtifactType:     rec.ArtifactType,
			MinioURL:         rec.MinioURL,
			ParentArtifactID: rec.ParentArtifactID,
			TaskName:         rec.TaskName,
			CreatedAt:        time.Now().UTC(),
			UserID:           rec.UserID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert artifact %s: %w", rec.ArtifactID, res.Error)
		}
		if res.RowsAffected == 0 || rec.ParentArtifactID == "" {
			return nil
		}
		edge := ArtifactLineageRow{
			ID:                 uuid.NewString(),
			ParentArtifactID:   rec.ParentArtifactID,
			ChildArtifactID:    rec.ArtifactID,
			TransformationType: rec.TaskName,
			CreatedAt:          time.Now().UTC(),
		}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("insert lineage edge %s -> %s: %w", rec.ParentArtifactID, rec.ArtifactID, err)
		}
		return nil
	})
}

// GetArtifact returns (nil, nil) when the id is unknown.
func (t *Tracker) GetArtifact(ctx context.Context, artifactID string) (*ArtifactRow, error) {
	var row ArtifactRow
	err := t.db.WithContext(ctx).First(&row, "artifact_id = ?", artifactID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", artifactID, err)
	}
	return &row, nil
}

func (t *Tracker) HasArtifact(ctx context.Context, artifactID string) (bool, error) {
	row, err := t.GetArtifact(ctx, artifactID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (t *Tracker) GetChildren(ctx context.Context, artifactID string) ([]ArtifactRow, error) {
	var edges []ArtifactLineageRow
	if err := t.db.WithContext(ctx).Find(&edges, "parent_artifact_id = ?", artifactID).Error; err != nil {
		return nil, fmt.Errorf("get children of %s: %w", artifactID, err)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ChildArtifactID)
	}
	var rows []ArtifactRow
	if err := t.db.WithContext(ctx).Find(&rows, "artifact_id IN ?", ids).Error; err != nil {
		return nil, fmt.Errorf("load children of %s: %w", artifactID, err)
	}
	return rows, nil
}

// GetDescendants walks the lineage graph from the root and returns every
// reachable row, root included. Unknown roots return ErrNotFound. A
// visited set guards against cycles in corrupted data.
func (t *Tracker) GetDescendants(ctx context.Context, rootID string) ([]ArtifactRow, error) {
	root, err := t.GetArtifact(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("artifact %s: %w", rootID, errs.ErrNotFound)
	}

	visited := map[string]struct{}{rootID: {}}
	result := []ArtifactRow{*root}
	stack := []string{rootID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := t.GetChildren(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, seen := visited[child.ArtifactID]; seen {
				continue
			}
			visited[child.ArtifactID] = struct{}{}
			result = append(result, child)
			stack = append(stack, child.ArtifactID)
		}
	}
	return result, nil
}

// DeleteSet removes the given artifact rows and every lineage edge that
// touches them, in one transaction. Returns (artifacts, edges) deleted.
func (t *Tracker) DeleteSet(ctx context.Context, artifactIDs []string) (int64, int64, error) {
	if len(artifactIDs) == 0 {
		return 0, 0, nil
	}
	var artifactsDeleted, edgesDeleted int64
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("parent_artifact_id IN ? OR child_artifact_id IN ?", artifactIDs, artifactIDs).
			Delete(&ArtifactLineageRow{})
		if res.Error != nil {
			return fmt.Errorf("delete lineage edges: %w", res.Error)
		}
		edgesDeleted = res.RowsAffected

		res = tx.Where("artifact_id IN ?", artifactIDs).Delete(&ArtifactRow{})
		if res.Error != nil {
			return fmt.Errorf("delete artifact rows: %w", res.Error)
		}
		artifactsDeleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	t.log.Info("Artifact set deleted", "artifacts", artifactsDeleted, "edges", edgesDeleted)
	return artifactsDeleted, edgesDeleted, nil
}
