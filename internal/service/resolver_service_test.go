package service

import (
	"context"
	"errors"
	"testing"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/repository"
	"gorm.io/gorm"
)

type fakeCustomerFetcher struct {
	customers map[string]*billing.Customer
	calls     int
	err       error
}

func (f *fakeCustomerFetcher) GetCustomer(_ context.Context, customerRef string) (*billing.Customer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.customers[customerRef], nil
}

func TestResolveExistingLinkSkipsUpstreamFetch(t *testing.T) {
	svc, fetcher, db := setupResolverServiceTest(t)

	profile := createDispatchTestProfile(t, db, "RSV001")
	patient := createDispatchTestPatient(t, db, "linked@example.com", profile.ID)
	createDispatchTestLink(t, db, "cus_rsv_linked", patient.ID, patient.ClinicID)

	got, err := svc.Resolve(context.Background(), "cus_rsv_linked", patient.ClinicID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.PatientID != patient.ID || got.ClinicID != patient.ClinicID {
		t.Fatalf("unexpected resolution: %+v", got)
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected no upstream fetch on link hit, got %d calls", fetcher.calls)
	}
}

func TestResolveEmailFallbackRepairsLink(t *testing.T) {
	svc, fetcher, db := setupResolverServiceTest(t)

	profile := createDispatchTestProfile(t, db, "RSV002")
	patient := createDispatchTestPatient(t, db, "fallback@example.com", profile.ID)
	fetcher.customers["cus_rsv_fallback"] = &billing.Customer{
		ID:    "cus_rsv_fallback",
		Email: "Fallback@Example.com",
	}

	got, err := svc.Resolve(context.Background(), "cus_rsv_fallback", patient.ClinicID)
	if err != nil {
		t.Fatalf("fallback resolve failed: %v", err)
	}
	if got.PatientID != patient.ID {
		t.Fatalf("expected patient %d, got %d", patient.ID, got.PatientID)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one upstream fetch, got %d", fetcher.calls)
	}

	// 兜底命中后关联已修复，再次解析走主路径
	again, err := svc.Resolve(context.Background(), "cus_rsv_fallback", patient.ClinicID)
	if err != nil {
		t.Fatalf("repeat resolve failed: %v", err)
	}
	if again.PatientID != patient.ID {
		t.Fatalf("expected repaired link to resolve patient %d, got %d", patient.ID, again.PatientID)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected link repair to avoid second fetch, got %d calls", fetcher.calls)
	}
}

func TestResolveWithoutClinicScopeStaysUnresolved(t *testing.T) {
	svc, fetcher, db := setupResolverServiceTest(t)

	profile := createDispatchTestProfile(t, db, "RSV003")
	patient := createDispatchTestPatient(t, db, "scoped@example.com", profile.ID)
	fetcher.customers["cus_rsv_scoped"] = &billing.Customer{
		ID:    "cus_rsv_scoped",
		Email: patient.Email,
	}

	_, err := svc.Resolve(context.Background(), "cus_rsv_scoped", 0)
	if !errors.Is(err, ErrCustomerUnresolved) {
		t.Fatalf("expected ErrCustomerUnresolved without clinic scope, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected no fetch without clinic scope, got %d calls", fetcher.calls)
	}
}

func TestResolveUpstreamFailureStaysUnresolved(t *testing.T) {
	svc, fetcher, _ := setupResolverServiceTest(t)

	fetcher.err = errors.New("upstream unavailable")
	_, err := svc.Resolve(context.Background(), "cus_rsv_down", 1)
	if !errors.Is(err, ErrCustomerUnresolved) {
		t.Fatalf("expected ErrCustomerUnresolved on upstream failure, got %v", err)
	}
}

func setupResolverServiceTest(t *testing.T) (*ResolverService, *fakeCustomerFetcher, *gorm.DB) {
	t.Helper()

	db := openServiceTestDB(t, "resolver")
	fetcher := &fakeCustomerFetcher{customers: map[string]*billing.Customer{}}
	return NewResolverService(repository.NewPatientRepository(db), fetcher), fetcher, db
}
