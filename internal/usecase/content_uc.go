package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/infra/logging"
	"course-subscription/internal/infra/metrics"
)

var _ ContentUseCase = (*contentUC)(nil)

const defaultUpsellMessage = "Subscribe to unlock every module of this course."

// ContentUseCase applies access decisions to the module list and to direct
// module links. Both go through the same resolver.
type ContentUseCase interface {
	ModuleList(ctx context.Context, cred model.Credential, courseRef string) (*model.ModuleListView, error)
	ModuleDetail(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.ModuleDetailView, error)
}

type contentUC struct {
	catalog  adapter.ContentCatalog
	access   AccessUseCase
	plansURL string
	log      *zerolog.Logger
}

func NewContentUseCase(catalog adapter.ContentCatalog, access AccessUseCase, plansURL string, logger *zerolog.Logger) *contentUC {
	l := logger.With().Str("component", "ContentUC").Logger()
	return &contentUC{catalog: catalog, access: access, plansURL: plansURL, log: &l}
}

func (u *contentUC) upsell(msg string) *model.Upsell {
	if strings.TrimSpace(msg) == "" {
		msg = defaultUpsellMessage
	}
	return &model.Upsell{Message: msg, PlansURL: u.plansURL}
}

// ModuleList exposes [0, maxFree) always and the rest only with full access.
func (u *contentUC) ModuleList(ctx context.Context, cred model.Credential, courseRef string) (*model.ModuleListView, error) {
	defer logging.TraceDuration(u.log, "ContentUC.ModuleList")()

	courseRef = strings.TrimSpace(courseRef)
	if courseRef == "" {
		return nil, domain.NewValidationError("course_ref", "course is required")
	}
	mods, err := u.catalog.ListModules(ctx, cred, courseRef)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].OrderIndex < mods[j].OrderIndex })

	s := u.access.CheckAccess(ctx, cred)
	view := &model.ModuleListView{
		CourseRef:      courseRef,
		MaxFreeModules: s.MaxFreeModules,
		UnlockedAll:    s.CanViewAllModules,
		Modules:        make([]model.ModuleEntry, 0, len(mods)),
		Error:          s.Error,
	}
	locked := 0
	for _, m := range mods {
		e := model.ModuleEntry{Index: m.OrderIndex, Title: m.Title}
		if model.CanOpenModule(m.OrderIndex, s.MaxFreeModules, s.CanViewAllModules) {
			e.Module = m
		} else {
			e.Locked = true
			e.Upsell = u.upsell("")
			locked++
		}
		view.Modules = append(view.Modules, e)
	}
	if locked > 0 {
		metrics.IncAccessDecision("list", "partial")
	} else {
		metrics.IncAccessDecision("list", "granted")
	}
	return view, nil
}

// ModuleDetail checks access before any content is loaded.
func (u *contentUC) ModuleDetail(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.ModuleDetailView, error) {
	defer logging.TraceDuration(u.log, "ContentUC.ModuleDetail")()

	courseRef = strings.TrimSpace(courseRef)
	if courseRef == "" {
		return nil, domain.NewValidationError("course_ref", "course is required")
	}
	acc := u.access.CheckModuleAccess(ctx, cred, courseRef, index)
	view := &model.ModuleDetailView{CourseRef: courseRef, Index: index, Access: acc}
	if !acc.CanAccess {
		view.Upsell = u.upsell(acc.Reason)
		return view, nil
	}
	m, err := u.catalog.GetModule(ctx, cred, courseRef, index)
	if err != nil {
		return nil, err
	}
	view.Module = m
	return view, nil
}
