package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPatientAge(t *testing.T) {
	born := time.Date(2015, 6, 10, 0, 0, 0, 0, time.UTC)
	p := &Patient{DateOfBirth: born}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"day before birthday", time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC), 10},
		{"on birthday", time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), 11},
		{"day after birthday", time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC), 11},
		{"earlier month", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 10},
		{"later month", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Age(tt.now))
		})
	}
}

func TestNewListMeta(t *testing.T) {
	meta := NewListMeta(25, 2, 10)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNextPage)
	assert.True(t, meta.HasPrevPage)

	last := NewListMeta(25, 3, 10)
	assert.False(t, last.HasNextPage)
	assert.True(t, last.HasPrevPage)

	empty := NewListMeta(0, 1, 10)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNextPage)
	assert.False(t, empty.HasPrevPage)
}

func TestDependentBlockCompleteness(t *testing.T) {
	name := "OSDE"
	empty := ""

	assert.True(t, (&HealthInsuranceInput{HasInsurance: true, InsuranceName: &name}).Complete())
	assert.False(t, (&HealthInsuranceInput{HasInsurance: false, InsuranceName: &name}).Complete())
	assert.False(t, (&HealthInsuranceInput{HasInsurance: true, InsuranceName: &empty}).Complete())
	assert.False(t, (&HealthInsuranceInput{HasInsurance: true}).Complete())

	school := "Escuela 12"
	addr := "Av. Mitre 100"
	grade := "4to"
	assert.True(t, (&SchoolInfoInput{AttendsSchool: true, SchoolName: &school, SchoolAddress: &addr, Grade: &grade}).Complete())
	assert.False(t, (&SchoolInfoInput{AttendsSchool: true, SchoolName: &school, SchoolAddress: &addr}).Complete())
	assert.False(t, (&SchoolInfoInput{AttendsSchool: false, SchoolName: &school, SchoolAddress: &addr, Grade: &grade}).Complete())

	business := "Salud SRL"
	taxID := "30-12345678-9"
	cond := TaxConditionMonotributo
	fiscal := "Belgrano 200"
	assert.True(t, (&BillingInfoInput{RequiresBilling: true, BusinessName: &business, TaxID: &taxID, TaxCondition: &cond, FiscalAddress: &fiscal}).Complete())
	assert.False(t, (&BillingInfoInput{RequiresBilling: true, BusinessName: &business, TaxID: &taxID, TaxCondition: &cond}).Complete())
	assert.False(t, (&BillingInfoInput{RequiresBilling: false, BusinessName: &business, TaxID: &taxID, TaxCondition: &cond, FiscalAddress: &fiscal}).Complete())
}
