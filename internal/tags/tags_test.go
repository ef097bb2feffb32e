package tags

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTagFormat(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "contacts:"+id.String(), KindContacts.For(id))
	assert.Equal(t, "user-orgs:"+id.String(), KindUserOrgs.For(id))
}

// Every write helper must cover at least the tags of the matching read helper,
// otherwise a mutation could leave a cached read stale past its TTL.
func TestWritersCoverReaders(t *testing.T) {
	orgID := uuid.New()
	userID := uuid.New()
	agentID := uuid.New()
	inboxID := uuid.New()

	cases := []struct {
		name  string
		read  []string
		write []string
	}{
		{"organization", OrganizationRead(orgID), OrganizationWrite(orgID)},
		{"members", OrgMembersRead(orgID), MembershipWrite(orgID, userID)},
		{"subscription", SubscriptionRead(orgID), SubscriptionWrite(orgID)},
		{"contacts", ContactsRead(orgID), ContactsWrite(orgID)},
		{"companies", CompaniesRead(orgID), CompaniesWrite(orgID)},
		{"deals", DealsRead(orgID), DealsWrite(orgID)},
		{"pipeline", PipelineRead(orgID), DealsWrite(orgID)},
		{"lost-reasons", LostReasonsRead(orgID), LostReasonsWrite(orgID)},
		{"products", ProductsRead(orgID), ProductsWrite(orgID)},
		{"tasks", TasksRead(orgID), TasksWrite(orgID)},
		{"agents", AgentsRead(orgID), AgentWrite(orgID, agentID)},
		{"agent", AgentRead(agentID), AgentWrite(orgID, agentID)},
		{"inboxes", InboxesRead(orgID), InboxWrite(orgID, inboxID)},
		{"inbox", InboxRead(inboxID), InboxWrite(orgID, inboxID)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			written := make(map[string]bool, len(tc.write))
			for _, tag := range tc.write {
				written[tag] = true
			}
			for _, tag := range tc.read {
				assert.True(t, written[tag], "write set missing read tag %s", tag)
			}
		})
	}
}

func TestMembershipWriteScopesBothSides(t *testing.T) {
	orgID := uuid.New()
	userID := uuid.New()
	got := MembershipWrite(orgID, userID)
	assert.Contains(t, got, KindOrgMembers.For(orgID))
	assert.Contains(t, got, KindUserOrgs.For(userID))
}

func TestTagsAreTenantScoped(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, ContactsWrite(a), ContactsWrite(b))
	assert.NotEqual(t, DealsWrite(a), DealsWrite(b))
}
