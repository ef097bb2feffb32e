// Package tags defines the cache invalidation key scheme. Each cacheable read
// registers under tags computed here, and each write invalidates tags computed
// here, so readers and writers can never disagree on a tag string. Tags have
// the form <kind>:<scopeID> where scopeID is an organization, user, or
// aggregate id.
package tags

import (
	"github.com/google/uuid"
)

// Kind is the closed enumeration of cacheable entity kinds.
type Kind string

const (
	KindUser            Kind = "user"
	KindUserOrgs        Kind = "user-orgs"
	KindOrganization    Kind = "organization"
	KindOrgMembers      Kind = "org-members"
	KindSubscriptions   Kind = "subscriptions"
	KindContacts        Kind = "contacts"
	KindCompanies       Kind = "companies"
	KindDeals           Kind = "deals"
	KindPipeline        Kind = "pipeline"
	KindDealLostReasons Kind = "deal-lost-reasons"
	KindProducts        Kind = "products"
	KindTasks           Kind = "tasks"
	KindAgents          Kind = "agents"
	KindAgent           Kind = "agent"
	KindInboxes         Kind = "inboxes"
	KindInbox           Kind = "inbox"
)

// For computes the tag for this kind and scope id.
func (k Kind) For(scopeID uuid.UUID) string {
	return string(k) + ":" + scopeID.String()
}

// Collection-level reads and writes share one org-scoped tag per kind; a
// writer may touch additional tags (never fewer) than the reads it can stale.

// UserOrgsRead tags the cached list of organizations a user belongs to.
func UserOrgsRead(userID uuid.UUID) []string { return []string{KindUserOrgs.For(userID)} }

// OrganizationRead tags a cached organization detail view.
func OrganizationRead(orgID uuid.UUID) []string { return []string{KindOrganization.For(orgID)} }

// OrganizationWrite invalidates the org detail after a settings change.
func OrganizationWrite(orgID uuid.UUID) []string { return OrganizationRead(orgID) }

// OrgMembersRead tags the cached member list of an organization.
func OrgMembersRead(orgID uuid.UUID) []string { return []string{KindOrgMembers.For(orgID)} }

// MembershipWrite invalidates member-list and per-user org-list views after
// any membership change (invite, accept, removal, role change).
func MembershipWrite(orgID, userID uuid.UUID) []string {
	return []string{KindOrgMembers.For(orgID), KindUserOrgs.For(userID)}
}

// SubscriptionRead tags the cached subscription of an organization.
func SubscriptionRead(orgID uuid.UUID) []string { return []string{KindSubscriptions.For(orgID)} }

// SubscriptionWrite invalidates the subscription view after a plan change.
func SubscriptionWrite(orgID uuid.UUID) []string { return SubscriptionRead(orgID) }

// ContactsRead tags org-scoped contact collection reads.
func ContactsRead(orgID uuid.UUID) []string { return []string{KindContacts.For(orgID)} }

// ContactsWrite invalidates contact collection reads.
func ContactsWrite(orgID uuid.UUID) []string { return ContactsRead(orgID) }

// CompaniesRead tags org-scoped company collection reads.
func CompaniesRead(orgID uuid.UUID) []string { return []string{KindCompanies.For(orgID)} }

// CompaniesWrite invalidates company collection reads.
func CompaniesWrite(orgID uuid.UUID) []string { return CompaniesRead(orgID) }

// DealsRead tags org-scoped deal collection reads.
func DealsRead(orgID uuid.UUID) []string { return []string{KindDeals.For(orgID)} }

// DealsWrite invalidates deal reads plus the pipeline board view, whose
// cached stage columns embed deal rows.
func DealsWrite(orgID uuid.UUID) []string {
	return []string{KindDeals.For(orgID), KindPipeline.For(orgID)}
}

// PipelineRead tags the cached pipeline/stage board of an organization.
func PipelineRead(orgID uuid.UUID) []string { return []string{KindPipeline.For(orgID)} }

// PipelineWrite invalidates the board after stage/pipeline changes.
func PipelineWrite(orgID uuid.UUID) []string { return PipelineRead(orgID) }

// LostReasonsRead tags the cached lost-reason list of an organization.
func LostReasonsRead(orgID uuid.UUID) []string { return []string{KindDealLostReasons.For(orgID)} }

// LostReasonsWrite invalidates the lost-reason list.
func LostReasonsWrite(orgID uuid.UUID) []string { return LostReasonsRead(orgID) }

// ProductsRead tags org-scoped product collection reads.
func ProductsRead(orgID uuid.UUID) []string { return []string{KindProducts.For(orgID)} }

// ProductsWrite invalidates product collection reads.
func ProductsWrite(orgID uuid.UUID) []string { return ProductsRead(orgID) }

// TasksRead tags org-scoped task collection reads.
func TasksRead(orgID uuid.UUID) []string { return []string{KindTasks.For(orgID)} }

// TasksWrite invalidates task collection reads.
func TasksWrite(orgID uuid.UUID) []string { return TasksRead(orgID) }

// AgentsRead tags the org-scoped agent collection.
func AgentsRead(orgID uuid.UUID) []string { return []string{KindAgents.For(orgID)} }

// AgentRead tags a single cached agent aggregate. The per-id tag keeps
// unrelated sibling updates from forcing a refetch of this aggregate.
func AgentRead(agentID uuid.UUID) []string { return []string{KindAgent.For(agentID)} }

// AgentWrite invalidates both the aggregate and the collection. Child writes
// (steps, knowledge files) use this too: the cached aggregate embeds
// summarized child state.
func AgentWrite(orgID, agentID uuid.UUID) []string {
	return []string{KindAgent.For(agentID), KindAgents.For(orgID)}
}

// InboxesRead tags the org-scoped inbox collection.
func InboxesRead(orgID uuid.UUID) []string { return []string{KindInboxes.For(orgID)} }

// InboxRead tags a single cached inbox view (conversations, messages).
func InboxRead(inboxID uuid.UUID) []string { return []string{KindInbox.For(inboxID)} }

// InboxWrite invalidates an inbox view and the collection after inbox,
// conversation, or message writes.
func InboxWrite(orgID, inboxID uuid.UUID) []string {
	return []string{KindInbox.For(inboxID), KindInboxes.For(orgID)}
}
