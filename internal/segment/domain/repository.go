package domain

import "context"

type Repository interface {
	Create(context.Context, *Segment) error
	Save(context.Context, *Segment) error
	FindByKey(context.Context, string) (*Segment, error)
	List(context.Context, string) ([]Segment, error)
}
