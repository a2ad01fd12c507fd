package web

import (
	"fmt"
	"time"

	"pintatina/internal/batch"
	"pintatina/internal/reference"
)

type itemView struct {
	Index    int          `json:"index"`
	Status   batch.Status `json:"status"`
	Modifier string       `json:"modifier"`
	ImageURL string       `json:"image_url,omitempty"`
}

type collectionView struct {
	Items     []itemView `json:"items"`
	Completed int        `json:"completed"`
	HasError  bool       `json:"has_error"`
	Progress  float64    `json:"progress"`
	Running   bool       `json:"running"`
}

type sessionView struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Email       string           `json:"email,omitempty"`
	Photos      []reference.Slot `json:"photos"`
	Remaining   int              `json:"remaining"`
	Dangling    []int            `json:"dangling_mentions,omitempty"`
	Collection  collectionView   `json:"collection"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func newCollectionView(sessionID string, snap batch.Snapshot, running bool) collectionView {
	items := make([]itemView, 0, len(snap.Items))
	for _, it := range snap.Items {
		v := itemView{Index: it.Index, Status: it.Status, Modifier: it.Modifier}
		if it.Status == batch.StatusCompleted {
			v.ImageURL = fmt.Sprintf("/api/sessions/%s/items/%d/image", sessionID, it.Index)
		}
		items = append(items, v)
	}
	return collectionView{
		Items:     items,
		Completed: snap.Completed(),
		HasError:  snap.HasError(),
		Progress:  snap.Progress(),
		Running:   running,
	}
}
