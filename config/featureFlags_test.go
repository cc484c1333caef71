package config

import "testing"

func TestSyncOrgDefaultTemplate(t *testing.T) {
	t.Setenv("SYNC_ORG_DEFAULT_TEMPLATE", "")
	if SyncOrgDefaultTemplate() {
		t.Fatalf("flag must default to off")
	}
	for _, v := range []string{"1", "true", "TRUE", "yes"} {
		t.Setenv("SYNC_ORG_DEFAULT_TEMPLATE", v)
		if !SyncOrgDefaultTemplate() {
			t.Fatalf("%q should enable the flag", v)
		}
	}
	t.Setenv("SYNC_ORG_DEFAULT_TEMPLATE", "off")
	if SyncOrgDefaultTemplate() {
		t.Fatalf("\"off\" should not enable the flag")
	}
}

func TestDefaultPhoneRegion(t *testing.T) {
	t.Setenv("DEFAULT_PHONE_REGION", "")
	if got := DefaultPhoneRegion(); got != "US" {
		t.Fatalf("expected US, got %s", got)
	}
	t.Setenv("DEFAULT_PHONE_REGION", " mm ")
	if got := DefaultPhoneRegion(); got != "MM" {
		t.Fatalf("expected MM, got %s", got)
	}
}

func TestDatabaseDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	if DatabaseDriver() != DriverMySQL {
		t.Fatalf("expected mysql by default")
	}
	t.Setenv("DB_DRIVER", "PostgreSQL")
	if DatabaseDriver() != DriverPostgres {
		t.Fatalf("expected postgres")
	}
}
