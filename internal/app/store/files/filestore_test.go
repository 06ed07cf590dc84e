package filestore_test

import (
	"testing"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/files"
	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func newFile(name string, typ models.FileType, org string) models.File {
	return models.File{
		Name:    name,
		Type:    typ,
		OwnerID: primitive.NewObjectID(),
		OrgID:   org,
		BlobRef: "blobs/" + name,
	}
}

func names(files []models.File) map[string]bool {
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[f.Name] = true
	}
	return out
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, newFile("Report.pdf", "pdf", "org_acme"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.NameCI != "report.pdf" {
		t.Errorf("NameCI: got %q, want %q", created.NameCI, "report.pdf")
	}
	if created.ShouldDelete {
		t.Error("expected new file not to be flagged")
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.OrgID != "org_acme" || got.Type != models.FileTypePDF {
		t.Errorf("unexpected stored file: %+v", got)
	}
}

func TestStore_Create_NormalizesLegacyTxt(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, newFile("notes", "txt", "org_acme"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Type != models.FileTypeText {
		t.Errorf("Type: got %q, want %q", created.Type, models.FileTypeText)
	}
}

func TestStore_Create_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name string
		mut  func(*models.File)
		want error
	}{
		{"missing name", func(f *models.File) { f.Name = "  " }, filestore.ErrNameRequired},
		{"missing org", func(f *models.File) { f.OrgID = "" }, filestore.ErrOrgRequired},
		{"missing owner", func(f *models.File) { f.OwnerID = primitive.NilObjectID }, filestore.ErrOwnerRequired},
		{"missing blob", func(f *models.File) { f.BlobRef = "" }, filestore.ErrBlobRefRequired},
		{"bad type", func(f *models.File) { f.Type = "video" }, filestore.ErrBadType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFile("a.txt", "text", "org_acme")
			tt.mut(&f)
			if _, err := store.Create(ctx, f); err != tt.want {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); err != mongo.ErrNoDocuments {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_List_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	invoice, _ := store.Create(ctx, newFile("Invoice_2024.pdf", "pdf", "org_acme"))
	photo, _ := store.Create(ctx, newFile("Team photo", "image", "org_acme"))
	trashed, _ := store.Create(ctx, newFile("old invoice.txt", "text", "org_acme"))
	_, _ = store.Create(ctx, newFile("invoice elsewhere", "pdf", "org_other"))

	if err := store.SetShouldDelete(ctx, trashed.ID, true); err != nil {
		t.Fatalf("SetShouldDelete failed: %v", err)
	}

	all, err := store.List(ctx, filestore.ListFilter{OrgID: "org_acme"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := names(all)
	if len(all) != 2 || !got[invoice.Name] || !got[photo.Name] {
		t.Errorf("default list: got %v", got)
	}

	byName, _ := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", Query: "INVOICE"})
	if len(byName) != 1 || byName[0].ID != invoice.ID {
		t.Errorf("query filter: got %v", names(byName))
	}

	deleted, _ := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", DeletedOnly: true})
	if len(deleted) != 1 || deleted[0].ID != trashed.ID {
		t.Errorf("deleted filter: got %v", names(deleted))
	}

	images, _ := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", Type: models.FileTypeImage})
	if len(images) != 1 || images[0].ID != photo.ID {
		t.Errorf("type filter: got %v", names(images))
	}

	only, _ := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", OnlyIDs: []primitive.ObjectID{photo.ID, trashed.ID}})
	if len(only) != 1 || only[0].ID != photo.ID {
		t.Errorf("id filter: got %v", names(only))
	}

	none, err := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", OnlyIDs: []primitive.ObjectID{}})
	if err != nil || len(none) != 0 {
		t.Errorf("empty id filter: got %v, %v", names(none), err)
	}
}

func TestStore_List_QueryIsLiteral(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, _ = store.Create(ctx, newFile("a+b (final).txt", "text", "org_acme"))
	_, _ = store.Create(ctx, newFile("aab final.txt", "text", "org_acme"))

	got, err := store.List(ctx, filestore.ListFilter{OrgID: "org_acme", Query: "a+b (f"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a+b (final).txt" {
		t.Errorf("expected literal match only, got %v", names(got))
	}
}

func TestStore_List_LegacyDocumentWithoutFlag(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := db.Collection("files").InsertOne(ctx, bson.M{
		"_id":     primitive.NewObjectID(),
		"name":    "legacy.pdf",
		"name_ci": "legacy.pdf",
		"type":    "pdf",
		"org_id":  "org_acme",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, _ := store.List(ctx, filestore.ListFilter{OrgID: "org_acme"})
	if len(got) != 1 {
		t.Errorf("expected legacy document in default list, got %d", len(got))
	}
}

func TestStore_SetShouldDelete_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.SetShouldDelete(ctx, primitive.NewObjectID(), true); err != mongo.ErrNoDocuments {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_FlaggedLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := store.Create(ctx, newFile("a.txt", "text", "org_1"))
	b, _ := store.Create(ctx, newFile("b.txt", "text", "org_2"))
	_, _ = store.Create(ctx, newFile("c.txt", "text", "org_1"))

	_ = store.SetShouldDelete(ctx, a.ID, true)
	_ = store.SetShouldDelete(ctx, b.ID, true)

	flagged, err := store.ListFlagged(ctx)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged files across orgs, got %d", len(flagged))
	}

	// Restored between listing and deletion: must survive.
	_ = store.SetShouldDelete(ctx, b.ID, false)
	if got, _ := store.GetByID(ctx, b.ID); got.ShouldDelete {
		t.Error("expected restored file to be unflagged")
	}
	deleted, err := store.DeleteIfFlagged(ctx, b.ID)
	if err != nil {
		t.Fatalf("DeleteIfFlagged failed: %v", err)
	}
	if deleted {
		t.Error("expected restored file to be kept")
	}

	deleted, err = store.DeleteIfFlagged(ctx, a.ID)
	if err != nil || !deleted {
		t.Errorf("expected flagged file to be deleted, got %v, %v", deleted, err)
	}

	n, _ := db.Collection("files").CountDocuments(ctx, bson.M{})
	if n != 2 {
		t.Errorf("expected 2 remaining files, got %d", n)
	}
}

func TestStore_Create_RejectsReusedBlobRef(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	victim, err := store.Create(ctx, newFile("payroll.pdf", "pdf", "org_victim"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stolen := newFile("mine.pdf", "pdf", "org_other")
	stolen.BlobRef = "  " + victim.BlobRef + " "
	if _, err := store.Create(ctx, stolen); err != filestore.ErrBlobRefTaken {
		t.Errorf("expected ErrBlobRefTaken, got %v", err)
	}

	n, _ := db.Collection("files").CountDocuments(ctx, bson.M{"blob_ref": victim.BlobRef})
	if n != 1 {
		t.Errorf("expected one record for the ref, got %d", n)
	}
}

func TestStore_BlobRefShared(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := store.Create(ctx, newFile("a.txt", "text", "org_1"))

	shared, err := store.BlobRefShared(ctx, a.BlobRef, a.ID)
	if err != nil || shared {
		t.Errorf("expected unshared ref, got %v, %v", shared, err)
	}

	// Records written before the unique index existed.
	_, err = db.Collection("files").InsertOne(ctx, bson.M{
		"_id":      primitive.NewObjectID(),
		"org_id":   "org_2",
		"blob_ref": a.BlobRef,
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	shared, err = store.BlobRefShared(ctx, a.BlobRef, a.ID)
	if err != nil || !shared {
		t.Errorf("expected shared ref, got %v, %v", shared, err)
	}
}

func TestStore_ReapClaimBlocksRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	f, _ := store.Create(ctx, newFile("a.txt", "text", "org_1"))
	live, _ := store.Create(ctx, newFile("b.txt", "text", "org_1"))

	if ok, err := store.ClaimForReap(ctx, live.ID); err != nil || ok {
		t.Errorf("expected unflagged file not to be claimable, got %v, %v", ok, err)
	}

	_ = store.SetShouldDelete(ctx, f.ID, true)
	ok, err := store.ClaimForReap(ctx, f.ID)
	if err != nil || !ok {
		t.Fatalf("ClaimForReap: got %v, %v", ok, err)
	}
	if ok, _ := store.ClaimForReap(ctx, f.ID); ok {
		t.Error("expected second claim to fail while the first is live")
	}

	if err := store.SetShouldDelete(ctx, f.ID, false); err != filestore.ErrReapInProgress {
		t.Errorf("expected ErrReapInProgress, got %v", err)
	}
	if got, _ := store.GetByID(ctx, f.ID); !got.ShouldDelete {
		t.Error("expected claimed file to stay flagged")
	}

	if err := store.ReleaseReap(ctx, f.ID); err != nil {
		t.Fatalf("ReleaseReap failed: %v", err)
	}
	if err := store.SetShouldDelete(ctx, f.ID, false); err != nil {
		t.Errorf("expected restore after release, got %v", err)
	}
	got, _ := store.GetByID(ctx, f.ID)
	if got.ShouldDelete || got.ReapingAt != nil {
		t.Errorf("expected restored, unclaimed file, got %+v", got)
	}
}

func TestStore_StaleReapClaimDoesNotBlockRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := filestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	f, _ := store.Create(ctx, newFile("a.txt", "text", "org_1"))
	stale := time.Now().UTC().Add(-2 * filestore.ReapClaimTTL)
	_, err := db.Collection("files").UpdateByID(ctx, f.ID, bson.M{"$set": bson.M{
		"should_delete": true,
		"reaping_at":    stale,
	}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := store.SetShouldDelete(ctx, f.ID, false); err != nil {
		t.Errorf("expected abandoned claim to be ignored, got %v", err)
	}
}

func TestBuildFilter_DefaultExcludesTrash(t *testing.T) {
	f := filestore.BuildFilter(filestore.ListFilter{OrgID: "org"})
	ne, ok := f["should_delete"].(bson.M)
	if !ok || ne["$ne"] != true {
		t.Errorf("expected should_delete $ne true, got %v", f["should_delete"])
	}
	if _, ok := f["name_ci"]; ok {
		t.Error("expected no name filter without a query")
	}

	f = filestore.BuildFilter(filestore.ListFilter{OrgID: "org", DeletedOnly: true, Type: models.FileTypePDF})
	if f["should_delete"] != true {
		t.Errorf("expected should_delete true, got %v", f["should_delete"])
	}
	if f["type"] != models.FileTypePDF {
		t.Errorf("expected type filter, got %v", f["type"])
	}
}
