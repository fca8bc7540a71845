package tracing

import (
	"context"
	"testing"
)

func TestChildSpansAttachToRoot(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, rank := StartChildSpan(ctx, "rank")
	rank.SetAttr("results", 3)
	rank.End()
	childCtx, fetch := StartChildSpan(ctx, "fetch-content")
	_, nested := StartChildSpan(childCtx, "nested")
	nested.End()
	fetch.End()
	root.End()

	if len(root.Children) != 2 || root.Children[0].Name != "rank" {
		t.Fatalf("children = %+v", root.Children)
	}
	if rank.TraceID != "req-1" || nested.TraceID != "req-1" {
		t.Errorf("trace id not propagated: %q %q", rank.TraceID, nested.TraceID)
	}
	if len(fetch.Children) != 1 {
		t.Errorf("nested span not attached to fetch")
	}
	if rank.Attrs["results"] != 3 {
		t.Errorf("attrs = %v", rank.Attrs)
	}
	root.Log()
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	span.SetAttr("k", "v")
	span.End()
	if SpanFromContext(ctx) != span {
		t.Error("span not stored in context")
	}
	if span.TraceID != "" {
		t.Errorf("orphan trace id = %q", span.TraceID)
	}
}
