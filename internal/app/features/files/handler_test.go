package files_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/features/files"
	favouritestore "github.com/dalemusser/stratadrive/internal/app/store/favourites"
	filestore "github.com/dalemusser/stratadrive/internal/app/store/files"
	principalstore "github.com/dalemusser/stratadrive/internal/app/store/principals"
	"github.com/dalemusser/stratadrive/internal/app/system/access"
	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"github.com/dalemusser/stratadrive/internal/app/vault"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type stubBlobs struct{}

func (stubBlobs) UploadURL(context.Context) (blob.UploadTicket, error) {
	return blob.UploadTicket{URL: "https://blobs.test/new", BlobRef: "new", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (stubBlobs) DownloadURL(_ context.Context, ref string) (string, bool, error) {
	return "https://blobs.test/" + ref, true, nil
}

func (stubBlobs) Delete(context.Context, string) error { return nil }

const (
	ownerTok    = "https://idp.test|owner"
	outsiderTok = "https://idp.test|outsider"
)

func setup(t *testing.T) (http.Handler, *testutil.Fixtures, models.Principal, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	fs := filestore.New(db)
	ps := principalstore.New(db)
	svc := vault.New(access.NewResolver(ps, fs), ps, fs, favouritestore.New(db), stubBlobs{}, zap.NewNop())
	h := files.NewHandler(svc, zap.NewNop())

	r := chi.NewRouter()
	r.Mount("/orgs", files.OrgRoutes(h))
	r.Mount("/files", files.FileRoutes(h))

	fx := testutil.NewFixtures(t, db)
	owner := fx.CreatePrincipal(ctx, ownerTok, models.Membership{OrgID: "acme", Role: models.RoleBasicMember})
	fx.CreatePrincipal(ctx, outsiderTok, models.Membership{OrgID: "globex", Role: models.RoleAdmin})
	return r, fx, owner, ctx
}

func do(h http.Handler, req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndList(t *testing.T) {
	h, _, _, _ := setup(t)

	req := testutil.WithIdentity(testutil.NewJSONRequest("POST", "/orgs/acme/files",
		map[string]string{"name": "Invoice_2024.pdf", "type": "pdf", "blob_ref": "b1"}), ownerTok)
	rec := do(h, req)
	rec.AssertStatus(t, http.StatusCreated)

	var created models.File
	rec.DecodeJSON(t, &created)
	if created.Name != "Invoice_2024.pdf" || created.OrgID != "acme" {
		t.Errorf("unexpected file: %+v", created)
	}

	rec = do(h, testutil.NewAuthenticatedRequest("GET", "/orgs/acme/files?query=invoice&type=pdf", ownerTok))
	rec.AssertStatus(t, http.StatusOK)
	var list []models.File
	rec.DecodeJSON(t, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}
	rec.AssertContains(t, `"should_delete":false`)
	if strings.Contains(rec.Body.String(), "blob_ref") {
		t.Errorf("listing leaks blob refs: %s", rec.Body.String())
	}

	// A second record may not point at the same blob.
	req = testutil.WithIdentity(testutil.NewJSONRequest("POST", "/orgs/acme/files",
		map[string]string{"name": "copy.pdf", "type": "pdf", "blob_ref": "b1"}), ownerTok)
	do(h, req).AssertStatus(t, http.StatusBadRequest)
}

func TestCreate_Errors(t *testing.T) {
	h, _, _, _ := setup(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"anonymous", testutil.NewJSONRequest("POST", "/orgs/acme/files", map[string]string{"name": "a", "type": "pdf", "blob_ref": "b"}), http.StatusUnauthorized},
		{"outsider", testutil.WithIdentity(testutil.NewJSONRequest("POST", "/orgs/acme/files", map[string]string{"name": "a", "type": "pdf", "blob_ref": "b"}), outsiderTok), http.StatusForbidden},
		{"bad type", testutil.WithIdentity(testutil.NewJSONRequest("POST", "/orgs/acme/files", map[string]string{"name": "a", "type": "exe", "blob_ref": "b"}), ownerTok), http.StatusBadRequest},
		{"unknown field", testutil.WithIdentity(testutil.NewJSONRequest("POST", "/orgs/acme/files", map[string]string{"name": "a", "type": "pdf", "blob_ref": "b", "owner_id": "x"}), ownerTok), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(h, tt.req).AssertStatus(t, tt.want)
		})
	}
}

func TestList_AnonymousIsEmpty(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	fx.CreateFile(ctx, "a.pdf", models.FileTypePDF, owner.ID, "acme")

	rec := do(h, testutil.NewRequest("GET", "/orgs/acme/files"))
	rec.AssertStatus(t, http.StatusOK)
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty array", got)
	}

	do(h, testutil.NewAuthenticatedRequest("GET", "/orgs/acme/files?deleted=maybe", ownerTok)).
		AssertStatus(t, http.StatusBadRequest)
}

func TestTrashRestoreFlow(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	f := fx.CreateFile(ctx, "a.pdf", models.FileTypePDF, owner.ID, "acme")
	id := f.ID.Hex()

	do(h, testutil.NewAuthenticatedRequest("POST", "/files/"+id+"/delete", outsiderTok)).AssertStatus(t, http.StatusForbidden)
	do(h, testutil.NewAuthenticatedRequest("POST", "/files/"+id+"/delete", ownerTok)).AssertStatus(t, http.StatusNoContent)

	var trashed []models.File
	rec := do(h, testutil.NewAuthenticatedRequest("GET", "/orgs/acme/files?deleted=true", ownerTok))
	rec.DecodeJSON(t, &trashed)
	if len(trashed) != 1 {
		t.Fatalf("trash = %+v", trashed)
	}

	do(h, testutil.NewAuthenticatedRequest("POST", "/files/"+id+"/restore", ownerTok)).AssertStatus(t, http.StatusNoContent)
	do(h, testutil.NewAuthenticatedRequest("POST", "/files/000000000000000000000000/restore", ownerTok)).AssertStatus(t, http.StatusNotFound)
	do(h, testutil.NewRequest("POST", "/files/"+id+"/restore")).AssertStatus(t, http.StatusUnauthorized)
}

func TestFavouriteToggle(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	f := fx.CreateFile(ctx, "a.pdf", models.FileTypePDF, owner.ID, "acme")

	var state map[string]bool
	rec := do(h, testutil.NewAuthenticatedRequest("POST", "/files/"+f.ID.Hex()+"/favourite", ownerTok))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &state)
	if !state["favourite"] {
		t.Error("expected favourite=true after first toggle")
	}

	var favs []models.Favourite
	do(h, testutil.NewAuthenticatedRequest("GET", "/orgs/acme/favourites", ownerTok)).DecodeJSON(t, &favs)
	if len(favs) != 1 || favs[0].FileID != f.ID {
		t.Errorf("favourites = %+v", favs)
	}

	var list []models.File
	do(h, testutil.NewAuthenticatedRequest("GET", "/orgs/acme/files?favourites=1", ownerTok)).DecodeJSON(t, &list)
	if len(list) != 1 {
		t.Errorf("favourites-only list = %+v", list)
	}
}

func TestURLs(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	f := fx.CreateFile(ctx, "a.pdf", models.FileTypePDF, owner.ID, "acme")

	rec := do(h, testutil.NewAuthenticatedRequest("POST", "/files/upload-url", ownerTok))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"blob_ref":"new"`)

	do(h, testutil.NewRequest("POST", "/files/upload-url")).AssertStatus(t, http.StatusUnauthorized)

	rec = do(h, testutil.NewAuthenticatedRequest("GET", "/files/"+f.ID.Hex()+"/url", ownerTok))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "https://blobs.test/"+f.BlobRef)

	rec = do(h, testutil.NewAuthenticatedRequest("GET", "/files/"+f.ID.Hex()+"/url", outsiderTok))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"url":null`)
}

func TestRestore_ConflictWhileReaping(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	f := fx.CreateTrashedFile(ctx, "a.txt", owner.ID, "acme")
	_, err := fx.DB().Collection("files").UpdateByID(ctx, f.ID, bson.M{"$set": bson.M{"reaping_at": time.Now().UTC()}})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	do(h, testutil.NewAuthenticatedRequest("POST", "/files/"+f.ID.Hex()+"/restore", ownerTok)).
		AssertStatus(t, http.StatusConflict)
}

func TestFavouriteState(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	f := fx.CreateFile(ctx, "a.pdf", models.FileTypePDF, owner.ID, "acme")
	path := "/files/" + f.ID.Hex() + "/favourite"

	rec := do(h, testutil.NewAuthenticatedRequest("GET", path, ownerTok))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"favourite":false`)

	do(h, testutil.NewAuthenticatedRequest("POST", path, ownerTok)).AssertStatus(t, http.StatusOK)
	rec = do(h, testutil.NewAuthenticatedRequest("GET", path, ownerTok))
	rec.AssertContains(t, `"favourite":true`)

	do(h, testutil.NewAuthenticatedRequest("GET", path, outsiderTok)).AssertStatus(t, http.StatusForbidden)
	do(h, testutil.NewRequest("GET", path)).AssertStatus(t, http.StatusUnauthorized)
}

func TestProfile(t *testing.T) {
	h, fx, owner, ctx := setup(t)
	_, err := fx.DB().Collection("principals").UpdateByID(ctx, owner.ID, bson.M{"$set": bson.M{"name": "Olive"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	peer := "https://idp.test|peer"
	fx.CreatePrincipal(ctx, peer, models.Membership{OrgID: "acme", Role: models.RoleGuestMember})
	path := "/orgs/acme/principals/" + owner.ID.Hex()

	rec := do(h, testutil.NewAuthenticatedRequest("GET", path, peer))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"name":"Olive"`)
	if strings.Contains(rec.Body.String(), "memberships") || strings.Contains(rec.Body.String(), "token_identifier") {
		t.Errorf("profile leaks private fields: %s", rec.Body.String())
	}

	do(h, testutil.NewAuthenticatedRequest("GET", path, outsiderTok)).AssertStatus(t, http.StatusNotFound)
	do(h, testutil.NewRequest("GET", path)).AssertStatus(t, http.StatusUnauthorized)
}
