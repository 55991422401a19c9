package strata

import (
	"context"

	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/query"
	"github.com/stratakv/strata/pkg/record"
)

// Operation names as they appear in hook invocations and error context.
const (
	OpCreate     = "create"
	OpCreateMany = "createMany"
	OpFind       = "find"
	OpFindAll    = "findAll"
	OpUpdate     = "update"
	OpUpdateAll  = "updateAll"
	OpUpdateMany = "updateMany"
	OpDestroy    = "destroy"
	OpDestroyAll = "destroyAll"
)

// BeforeHook runs before an operation touches storage. It receives the
// operation's primary argument and may return a replacement; returning nil
// keeps the original. An error aborts the operation.
type BeforeHook func(ctx context.Context, m *mapper.Mapper, op string, arg any) (any, error)

// AfterHook runs after an operation has produced its response. It may return
// a replacement response; returning nil keeps the original. An error aborts
// the operation.
type AfterHook func(ctx context.Context, m *mapper.Mapper, op string, arg any, resp *Response) (*Response, error)

// UpdateArgs is the before-hook argument for Update.
type UpdateArgs struct {
	ID    any
	Props record.Record
}

// UpdateAllArgs is the before-hook argument for UpdateAll.
type UpdateAllArgs struct {
	Props record.Record
	Query query.Query
}

// Hooks holds one before and one after hook per operation. Unset hooks
// default to a debug log line and pass the values through unchanged.
//
// The before-hook argument per operation:
//
//	create      record.Record        the props to insert
//	createMany  []record.Record      the props list
//	find        any                  the id
//	findAll     query.Query          the declarative query
//	update      UpdateArgs           id and props
//	updateAll   UpdateAllArgs        props and query
//	updateMany  []record.Record      the records to write back
//	destroy     any                  the id
//	destroyAll  query.Query          the declarative query
type Hooks struct {
	BeforeCreate     BeforeHook
	AfterCreate      AfterHook
	BeforeCreateMany BeforeHook
	AfterCreateMany  AfterHook
	BeforeFind       BeforeHook
	AfterFind        AfterHook
	BeforeFindAll    BeforeHook
	AfterFindAll     AfterHook
	BeforeUpdate     BeforeHook
	AfterUpdate      AfterHook
	BeforeUpdateAll  BeforeHook
	AfterUpdateAll   AfterHook
	BeforeUpdateMany BeforeHook
	AfterUpdateMany  AfterHook
	BeforeDestroy    BeforeHook
	AfterDestroy     AfterHook
	BeforeDestroyAll BeforeHook
	AfterDestroyAll  AfterHook
}

func (h *Hooks) before(op string) BeforeHook {
	switch op {
	case OpCreate:
		return h.BeforeCreate
	case OpCreateMany:
		return h.BeforeCreateMany
	case OpFind:
		return h.BeforeFind
	case OpFindAll:
		return h.BeforeFindAll
	case OpUpdate:
		return h.BeforeUpdate
	case OpUpdateAll:
		return h.BeforeUpdateAll
	case OpUpdateMany:
		return h.BeforeUpdateMany
	case OpDestroy:
		return h.BeforeDestroy
	case OpDestroyAll:
		return h.BeforeDestroyAll
	}
	return nil
}

func (h *Hooks) after(op string) AfterHook {
	switch op {
	case OpCreate:
		return h.AfterCreate
	case OpCreateMany:
		return h.AfterCreateMany
	case OpFind:
		return h.AfterFind
	case OpFindAll:
		return h.AfterFindAll
	case OpUpdate:
		return h.AfterUpdate
	case OpUpdateAll:
		return h.AfterUpdateAll
	case OpUpdateMany:
		return h.AfterUpdateMany
	case OpDestroy:
		return h.AfterDestroy
	case OpDestroyAll:
		return h.AfterDestroyAll
	}
	return nil
}

// runBefore applies the operation's before hook to arg and returns the value
// the operation should proceed with.
func (a *Adapter) runBefore(ctx context.Context, m *mapper.Mapper, op string, arg any) (any, error) {
	hook := a.hooks.before(op)
	if hook == nil {
		a.logger.DebugContext(ctx, "before hook", "op", op, "mapper", m.Name)
		return arg, nil
	}
	out, err := hook(ctx, m, op, arg)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return arg, nil
	}
	return out, nil
}

// runAfter applies the operation's after hook to the response and returns
// the response the caller should see.
func (a *Adapter) runAfter(ctx context.Context, m *mapper.Mapper, op string, arg any, resp *Response) (*Response, error) {
	hook := a.hooks.after(op)
	if hook == nil {
		a.logger.DebugContext(ctx, "after hook", "op", op, "mapper", m.Name)
		return resp, nil
	}
	out, err := hook(ctx, m, op, arg, resp)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return resp, nil
	}
	return out, nil
}

// finish runs the after hook and honors a Raw capture. Every operation ends
// here exactly once.
func (a *Adapter) finish(ctx context.Context, m *mapper.Mapper, op string, arg any, resp *Response, call *callOptions) (*Response, error) {
	out, err := a.runAfter(ctx, m, op, arg, resp)
	if err != nil {
		return nil, err
	}
	if call.raw != nil {
		*call.raw = *out
	}
	return out, nil
}
