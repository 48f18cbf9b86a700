package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ValueRejectsUnknown(t *testing.T) {
	_, err := Status("in_review").Value()
	assert.Error(t, err)

	v, err := StatusUnderScrutiny.Value()
	require.NoError(t, err)
	assert.Equal(t, "under_scrutiny", v)
}

func TestStatus_Scan(t *testing.T) {
	var s Status
	require.NoError(t, s.Scan([]byte("reverted_by_dtdo")))
	assert.Equal(t, StatusRevertedByDTDO, s)
	assert.Error(t, s.Scan("bogus"))
	assert.Error(t, s.Scan(12))

	var ns NullableStatus
	require.NoError(t, ns.Scan(""))
	assert.Equal(t, Status(""), ns.Status)
	require.NoError(t, ns.Scan("forwarded_to_dtdo"))
	assert.Equal(t, StatusForwardedToDTDO, ns.Status)
}

func TestStatus_Classes(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusSuperseded, StatusCertificateCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusDraft.IsTerminal())
	assert.True(t, StatusDraft.OwnerEditable())
	assert.True(t, StatusSentBackForCorrections.OwnerEditable())
	assert.False(t, StatusUnderScrutiny.OwnerEditable())
	assert.Len(t, AllStatuses(), 13)
}

func TestKind_Rules(t *testing.T) {
	assert.Equal(t, "NR", KindNewRegistration.Code())
	assert.Equal(t, "AR", KindAddRooms.Code())
	assert.False(t, KindNewRegistration.RequiresParent())
	assert.True(t, KindRenewal.RequiresParent())
	assert.True(t, KindAddRooms.RequiresInspection())
	assert.False(t, KindRenewal.RequiresInspection())
	assert.False(t, KindCancellation.IssuesCertificate())

	st, ok := KindCancellation.SettledParentStatus()
	assert.True(t, ok)
	assert.Equal(t, StatusCertificateCancelled, st)
	st, ok = KindDeleteRooms.SettledParentStatus()
	assert.True(t, ok)
	assert.Equal(t, StatusSuperseded, st)
	_, ok = KindNewRegistration.SettledParentStatus()
	assert.False(t, ok)

	_, err := ParseKind("timeshare")
	assert.Error(t, err)
}

func TestRole_Capabilities(t *testing.T) {
	assert.True(t, RoleOwner.Can(CapEditOwnApplication))
	assert.False(t, RoleOwner.Can(CapScrutinize))
	assert.True(t, RoleDealingAssistant.Can(CapScrutinize))
	assert.False(t, RoleDealingAssistant.Can(CapDistrictDecision))
	assert.True(t, RoleStateAdmin.Can(CapCrossDistrict))

	dtdo := Actor{ID: "d1", Role: RoleDistrictTourismOfficer, District: "shimla"}
	assert.True(t, dtdo.CoversDistrict("shimla"))
	assert.False(t, dtdo.CoversDistrict("kullu"))
	admin := Actor{ID: "a1", Role: RoleStateAdmin}
	assert.True(t, admin.CoversDistrict("kullu"))
}

func TestAction_LogKinds(t *testing.T) {
	assert.Equal(t, LogCorrectionResubmitted, ActionResubmitCorrection.LogKind())
	assert.Equal(t, LogDocumentVerified, ActionVerifyDocuments.LogKind())
	assert.Equal(t, LogApproved, ActionApproveCancellation.LogKind())
	_, err := ParseAction("teleport")
	assert.Error(t, err)
}

func TestEventFor(t *testing.T) {
	e, ok := EventFor(ActionSubmit, StatusSubmitted)
	assert.True(t, ok)
	assert.Equal(t, EventApplicationSubmitted, e)

	e, ok = EventFor(ActionRaiseObjections, StatusRevertedByDTDO)
	assert.True(t, ok)
	assert.Equal(t, EventSentBackForCorrections, e)

	_, ok = EventFor(ActionStartScrutiny, StatusUnderScrutiny)
	assert.False(t, ok)
}

func TestInspectionOrder_CanMoveTo(t *testing.T) {
	o := &InspectionOrder{Status: OrderScheduled}
	assert.True(t, o.CanMoveTo(OrderAcknowledged))
	o.Status = OrderCompleted
	assert.False(t, o.CanMoveTo(OrderInProgress))
	assert.False(t, OrderCancelled.Active())
	assert.True(t, OrderInProgress.Active())
}

func TestInspectionReport_CorrectionNotes(t *testing.T) {
	r := &InspectionReport{RoomCountVerified: false, CategoryMeetsStandards: true, OverallSatisfactory: false}
	assert.Equal(t, []string{"room count could not be verified", "overall inspection not satisfactory"}, r.Findings())
	assert.Equal(t, "room count could not be verified", r.CorrectionNotes())

	r.DetailedFindings = "fire exit blocked"
	assert.Equal(t, "fire exit blocked", r.CorrectionNotes())
}

func TestNormalizeInline(t *testing.T) {
	doc, err := NormalizeInline("app-1", json.RawMessage(`{"type":"property_photo","name":"front.jpg","url":"s3://b/front.jpg","size":2048}`))
	require.NoError(t, err)
	assert.Equal(t, DocumentTypePhoto, doc.DocumentType)
	assert.Equal(t, "front.jpg", doc.FileName)
	assert.Equal(t, "s3://b/front.jpg", doc.StorageKey)
	assert.Equal(t, int64(2048), doc.SizeBytes)
	assert.Equal(t, DocumentInline, doc.Source)

	_, err = NormalizeInline("app-1", json.RawMessage(`{"name":"x"}`))
	assert.Error(t, err)
}

func TestApplication_CloneIsDeep(t *testing.T) {
	a := &Application{ID: "a", CorrectionIssues: []string{"x"}}
	c := a.Clone()
	c.CorrectionIssues[0] = "y"
	assert.Equal(t, "x", a.CorrectionIssues[0])
}
