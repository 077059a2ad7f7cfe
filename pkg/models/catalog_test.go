package models

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	order := c.ApplicableTaskTypes(ReferenceTypeOrder)
	want := []TaskType{TaskTypeCreateInvoice, TaskTypeArrangePickup, TaskTypeCollectPayment}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}

	entity := c.ApplicableTaskTypes(ReferenceTypeEntity)
	if len(entity) != 1 || entity[0] != TaskTypeAssignCustomerToSalesPerson {
		t.Errorf("unexpected ENTITY types: %v", entity)
	}

	if got := c.ApplicableTaskTypes("UNKNOWN"); len(got) != 0 {
		t.Errorf("expected no types for unknown reference, got %v", got)
	}
}

func TestCatalogImmutable(t *testing.T) {
	src := map[ReferenceType][]TaskType{
		ReferenceTypeOrder: {TaskTypeCreateInvoice},
	}
	c := NewCatalog(src)

	src[ReferenceTypeOrder][0] = TaskTypeCollectPayment
	src[ReferenceTypeEntity] = []TaskType{TaskTypeAssignCustomerToSalesPerson}

	got := c.ApplicableTaskTypes(ReferenceTypeOrder)
	if got[0] != TaskTypeCreateInvoice {
		t.Errorf("catalog changed with its source map: %v", got)
	}
	if c.Supports(ReferenceTypeEntity, TaskTypeAssignCustomerToSalesPerson) {
		t.Error("catalog picked up a later source entry")
	}

	got[0] = TaskTypeArrangePickup
	if c.ApplicableTaskTypes(ReferenceTypeOrder)[0] != TaskTypeCreateInvoice {
		t.Error("catalog changed through a returned slice")
	}
}

func TestCatalogSupports(t *testing.T) {
	c := DefaultCatalog()
	if !c.Supports(ReferenceTypeOrder, TaskTypeArrangePickup) {
		t.Error("ORDER should support ARRANGE_PICKUP")
	}
	if c.Supports(ReferenceTypeEntity, TaskTypeArrangePickup) {
		t.Error("ENTITY should not support ARRANGE_PICKUP")
	}
}
