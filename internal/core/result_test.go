package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResultTagsResolveToDeclaredDimensions(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, flatSource())
	ds := datasetAt(t, c, "Dataset_1")
	rs, err := ds.Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	r, err := rs.At(0)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if r.Value() != 127 || r.String() != "127" || r.ResultSet() != rs || r.Dataset() != ds {
		t.Fatalf("unexpected result %v", r)
	}
	muni, err := r.Get("municipality")
	if err != nil {
		t.Fatalf("get municipality: %v", err)
	}
	if muni.Value() != "Robertsfors kommun" || muni.Dimension().Anonymous() {
		t.Fatalf("unexpected municipality %v", muni)
	}
	dims, _ := ds.Dimensions(ctx)
	declared, _ := dims.Get("municipality")
	if muni.Dimension() != declared || muni.DimensionLabel() != "municipality" {
		t.Fatalf("value not tied to declared dimension")
	}
	first, _ := r.Get(0)
	if first.DimensionID() != "date" {
		t.Fatalf("declared order not kept, first=%s", first.DimensionID())
	}
	if _, err := r.Get("gender"); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("expected missing tag, got %v", err)
	}
	row := r.Row()
	if row["value"] != 127 || row["date"] != "2017-08-10" {
		t.Fatalf("unexpected row %v", row)
	}
	if !strings.Contains(rs.String(), "municipality=Robertsfors kommun") {
		t.Fatalf("unexpected rendering %q", rs.String())
	}
}

func TestUndeclaredTagsGetAnonymousDimension(t *testing.T) {
	ctx := context.Background()
	src := flatSource()
	src.extraRows = map[string][]*Result{
		"Dataset_3": {NewResult(1, map[string]any{"zeta": "z", "alpha": "a", "date": "2017-01-01"})},
	}
	c := newTestCursor(t, src)
	rs, err := datasetAt(t, c, "Dataset_3").Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	r, _ := rs.At(0)
	var order []string
	for v := range r.Dimensions().All() {
		order = append(order, v.DimensionID())
	}
	if strings.Join(order, ",") != "date,alpha,zeta" {
		t.Fatalf("unexpected resolution order %v", order)
	}
	zeta, _ := r.Get("zeta")
	if !zeta.Dimension().Anonymous() || zeta.Dimension().ID() != "zeta" {
		t.Fatalf("expected anonymous dimension, got %v", zeta.Dimension())
	}
	if raw := r.RawDimensions(); len(raw) != 3 {
		t.Fatalf("raw tags lost: %v", raw)
	}
}

func TestPrebuiltDimensionValueKept(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, flatSource())
	ds := datasetAt(t, c, "Dataset_1")
	dims, err := ds.Dimensions(ctx)
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	gender, _ := dims.Get("gender")
	dv := NewDimensionValue("female", gender)
	rs := newResultSet(ds, "")
	if err := rs.Append(ctx, NewResult(3, map[string]any{"gender": dv})); err != nil {
		t.Fatalf("append: %v", err)
	}
	r, _ := rs.At(0)
	got, _ := r.Get("gender")
	if got != dv || got.Label() != "Women" {
		t.Fatalf("expected the prebuilt value, got %v label %q", got, got.Label())
	}
	if got, _ := r.Get(dv); got != dv {
		t.Fatalf("identity lookup failed")
	}
	other := newResultSet(ds, "")
	if err := other.Append(ctx, r); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for result in another set, got %v", err)
	}
	if err := other.Append(ctx, nil); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for nil result, got %v", err)
	}
}

func TestUnboundDimensionValueTakesTagDimension(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, flatSource())
	ds := datasetAt(t, c, "Dataset_1")
	dims, err := ds.Dimensions(ctx)
	if err != nil {
		t.Fatalf("dimensions: %v", err)
	}
	gender, _ := dims.Get("gender")
	loose := NewDimensionValue("female", nil)
	rs := newResultSet(ds, "")
	tags := map[string]any{"gender": loose, "region": NewDimensionValue("x", nil)}
	if err := rs.Append(ctx, NewResult(1, tags)); err != nil {
		t.Fatalf("append: %v", err)
	}
	r, _ := rs.At(0)
	got, err := r.Get("gender")
	if err != nil {
		t.Fatalf("get gender: %v", err)
	}
	if got.Dimension() != gender || got.DimensionID() != "gender" || got.Value() != "female" {
		t.Fatalf("unbound value not adopted by declared dimension: %v (%s)", got, got.DimensionID())
	}
	if loose.Dimension() != nil {
		t.Fatalf("caller's value must stay unbound")
	}
	region, err := r.Get("region")
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	if !region.Dimension().Anonymous() || region.DimensionID() != "region" {
		t.Fatalf("expected anonymous region dimension, got %v", region.Dimension())
	}
	row := r.Row()
	if row["region"] != "x" || row["gender"] != "female" || len(row) != 3 {
		t.Fatalf("unexpected row %v", row)
	}
	if raw := r.RawDimensions(); raw["gender"] != got {
		t.Fatalf("raw tags must hold the adopted value")
	}
}

func TestUntaggedResultSkipsDimensions(t *testing.T) {
	rs := newResultSet(nil, "")
	if err := rs.Append(context.Background(), NewResult(5, nil)); err != nil {
		t.Fatalf("append untagged: %v", err)
	}
	if err := rs.Append(context.Background(), NewResult(5, map[string]any{"a": 1})); !errors.Is(err, ErrDetached) {
		t.Fatalf("expected ErrDetached without dataset, got %v", err)
	}
	if rs.Len() != 1 {
		t.Fatalf("failed append must not add, len=%d", rs.Len())
	}
	if _, err := rs.At(4); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("expected ErrNoSuchItem, got %v", err)
	}
}

func TestTranslateCopiesAndMaps(t *testing.T) {
	ctx := context.Background()
	c := newTestCursor(t, flatSource())
	rs, err := datasetAt(t, c, "Dataset_2").Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	translated := rs.Translate("scb")
	if translated == rs || translated.Dialect() != "scb" || translated.Len() != rs.Len() {
		t.Fatalf("unexpected translation %v", translated)
	}
	orig, _ := rs.At(0)
	cp, _ := translated.At(0)
	if cp == orig || cp.ResultSet() != translated || cp.Dataset() != orig.Dataset() {
		t.Fatalf("results must be copies bound to the new set")
	}
	muni, _ := cp.Get("municipality")
	if muni.Value() != "2480" {
		t.Fatalf("expected scb code, got %v", muni.Value())
	}
	date, _ := cp.Get("date")
	if date.Value() != "2017-02-06" {
		t.Fatalf("unmapped values must be kept, got %v", date.Value())
	}
	origMuni, _ := orig.Get("municipality")
	if origMuni.Value() != "Umeå kommun" || rs.Dialect() != "" {
		t.Fatalf("original mutated: %v", origMuni.Value())
	}
	if muni.UID() == origMuni.UID() {
		t.Fatalf("copies need their own identity")
	}
}
