package gallery

import (
	"context"
	"slices"

	"github.com/example/bannerdesk/internal/store"
)

// MoveUp swaps the image with its predecessor in display order. Moving the
// first image is a no-op.
func (s *Service) MoveUp(ctx context.Context, id string) error {
	return s.move(ctx, func(images []store.Image) ([]store.OrderUpdate, error) {
		i := indexOf(images, id)
		if i < 0 {
			return nil, store.ErrNotFound
		}
		if i == 0 {
			return nil, nil
		}
		return SwapKeys(images[i], images[i-1]), nil
	})
}

// MoveDown swaps the image with its successor in display order. Moving the
// last image is a no-op.
func (s *Service) MoveDown(ctx context.Context, id string) error {
	return s.move(ctx, func(images []store.Image) ([]store.OrderUpdate, error) {
		i := indexOf(images, id)
		if i < 0 {
			return nil, store.ErrNotFound
		}
		if i == len(images)-1 {
			return nil, nil
		}
		return SwapKeys(images[i], images[i+1]), nil
	})
}

// MoveToIndex moves the image at position from to position to and
// renumbers the whole gallery. Equal or out-of-range positions are a no-op.
func (s *Service) MoveToIndex(ctx context.Context, from, to int) error {
	if from == to {
		return nil
	}
	return s.move(ctx, func(images []store.Image) ([]store.OrderUpdate, error) {
		if from < 0 || from >= len(images) || to < 0 || to >= len(images) {
			return nil, nil
		}
		return Renumber(Splice(images, from, to)), nil
	})
}

func (s *Service) move(ctx context.Context, plan func([]store.Image) ([]store.OrderUpdate, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.store.ListImages(ctx)
	if err != nil {
		return err
	}
	updates, err := plan(images)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.store.UpdateImageOrderKeys(ctx, updates); err != nil {
		return err
	}
	s.logger.Info("gallery reordered", "updates", len(updates))
	s.notify(ctx)
	return nil
}

// SwapKeys exchanges the order keys of a and b.
func SwapKeys(a, b store.Image) []store.OrderUpdate {
	return []store.OrderUpdate{
		{ID: a.ID, OrderKey: b.OrderKey},
		{ID: b.ID, OrderKey: a.OrderKey},
	}
}

// Splice returns a copy of images with the element at from removed and
// reinserted at to. Callers must pass in-range indices.
func Splice(images []store.Image, from, to int) []store.Image {
	out := slices.Clone(images)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, moved)
}

// Renumber assigns len-i to the image at position i, so the first image gets
// the highest key.
func Renumber(images []store.Image) []store.OrderUpdate {
	updates := make([]store.OrderUpdate, len(images))
	for i, img := range images {
		updates[i] = store.OrderUpdate{ID: img.ID, OrderKey: int64(len(images) - i)}
	}
	return updates
}

func indexOf(images []store.Image, id string) int {
	return slices.IndexFunc(images, func(img store.Image) bool { return img.ID == id })
}
