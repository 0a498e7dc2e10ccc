package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
	"github.com/careloop/careloop/internal/services/provisioning/dns"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/notify"
	"github.com/careloop/careloop/internal/services/provisioning/processor"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// RunnerConfig controls saga advancement and DNS verification polling.
type RunnerConfig struct {
	PollInterval         time.Duration
	MaxAttempts          int
	InvitationTTL        time.Duration
	DNSVerifyInterval    time.Duration
	DNSVerifyMaxAttempts int
	DNSVerifyMaxDelay    time.Duration
	BatchSize            int
}

const (
	defaultRunnerPollInterval  = time.Second
	defaultRunnerMaxAttempts   = 5
	defaultDNSVerifyInterval   = 2 * time.Second
	defaultDNSVerifyAttempts   = 8
	defaultDNSVerifyMaxDelay   = time.Minute
	defaultRunnerBatchSize     = 16
	defaultRunnerInvitationTTL = 7 * 24 * time.Hour
)

func (c RunnerConfig) normalized() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultRunnerPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultRunnerMaxAttempts
	}
	if c.InvitationTTL <= 0 {
		c.InvitationTTL = defaultRunnerInvitationTTL
	}
	if c.DNSVerifyInterval <= 0 {
		c.DNSVerifyInterval = defaultDNSVerifyInterval
	}
	if c.DNSVerifyMaxAttempts <= 0 {
		c.DNSVerifyMaxAttempts = defaultDNSVerifyAttempts
	}
	if c.DNSVerifyMaxDelay <= 0 {
		c.DNSVerifyMaxDelay = defaultDNSVerifyMaxDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultRunnerBatchSize
	}
	return c
}

// Runner advances durable bootstrap sagas: forward through entity creation,
// DNS, invitations, and activation, or backward through compensation.
type Runner struct {
	store       storage.Store
	registrar   dns.Registrar
	sender      notify.Sender
	signer      *invite.TokenSigner
	dispatcher  *processor.Loop
	cfg         RunnerConfig
	now         func() time.Time
	idGenerator func() (string, error)
	logf        func(format string, args ...any)
	tracer      trace.Tracer
}

// NewRunner creates a saga runner. The dispatcher is drained after every
// append so projections stay caught up with the journal.
func NewRunner(store storage.Store, registrar dns.Registrar, sender notify.Sender, signer *invite.TokenSigner, dispatcher *processor.Loop, cfg RunnerConfig) *Runner {
	return &Runner{
		store:       store,
		registrar:   registrar,
		sender:      sender,
		signer:      signer,
		dispatcher:  dispatcher,
		cfg:         cfg.normalized(),
		now:         time.Now,
		idGenerator: id.NewID,
		logf:        log.Printf,
		tracer:      otel.Tracer("careloop/provisioning/saga"),
	}
}

// Run polls for resumable sagas until ctx is cancelled. Sagas survive
// restarts; anything non-terminal found at startup resumes where it left off.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logf("saga poll: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// RunOnce advances every currently resumable saga once.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if _, err := r.dispatcher.Drain(ctx); err != nil {
		r.logf("drain journal before saga poll: %v", err)
	}

	sagas, err := r.store.ListResumableSagas(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	var advanced int
	for _, record := range sagas {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		if err := r.Step(ctx, record.ID); err != nil {
			r.logf("advance saga %s: %v", record.ID, err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// Step advances one saga until it reaches a terminal state, an error that
// needs a retry on a later poll, or a compensation hand-off.
func (r *Runner) Step(ctx context.Context, sagaID string) error {
	record, err := r.store.GetSaga(ctx, sagaID)
	if err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "saga.step", trace.WithAttributes(
		attribute.String("saga.id", record.ID),
		attribute.String("saga.state", saga.StateLabel(record.State)),
	))
	defer span.End()

	for !record.Terminal() {
		if record.CancelRequested && record.State != saga.StateCompensating {
			record, err = r.beginCompensation(ctx, record, saga.ErrCancelled)
			if err != nil {
				return err
			}
			continue
		}

		record, err = r.advance(ctx, record)
		if err == nil {
			continue
		}
		if errors.Is(err, errDNSPropagationPending) {
			// Waiting on propagation, not failing. The saga stays
			// resumable and a later poll checks again.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.handleStepFailure(ctx, record, err)
	}
	return nil
}

func (r *Runner) advance(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	switch record.State {
	case saga.StateCreated:
		return r.stepCreateEntities(ctx, record)
	case saga.StateDNSConfiguring:
		return r.stepConfigureDNS(ctx, record)
	case saga.StateDNSVerifying:
		return r.stepVerifyDNS(ctx, record)
	case saga.StateInvitationsSent:
		return r.stepActivate(ctx, record)
	case saga.StateCompensating:
		return r.stepCompensate(ctx, record)
	default:
		return record, saga.Permanent(fmt.Errorf("saga %s in unexpected state %s", record.ID, saga.StateLabel(record.State)))
	}
}

// handleStepFailure records the error and decides between retry on a later
// poll and compensation.
func (r *Runner) handleStepFailure(ctx context.Context, record saga.Bootstrap, stepErr error) error {
	record, loadErr := r.store.GetSaga(ctx, record.ID)
	if loadErr != nil {
		return errors.Join(stepErr, loadErr)
	}

	record.Attempts++
	record.LastError = stepErr.Error()
	record.UpdatedAt = r.now().UTC()

	if record.State == saga.StateCompensating {
		// Compensation retries forever; it must eventually run to
		// completion.
		return r.store.UpdateSaga(ctx, record)
	}

	if saga.IsPermanent(stepErr) || record.Attempts >= r.cfg.MaxAttempts {
		if err := r.store.UpdateSaga(ctx, record); err != nil {
			return errors.Join(stepErr, err)
		}
		if _, err := r.beginCompensation(ctx, record, stepErr); err != nil {
			return errors.Join(stepErr, err)
		}
		return stepErr
	}
	if err := r.store.UpdateSaga(ctx, record); err != nil {
		return errors.Join(stepErr, err)
	}
	return stepErr
}

func (r *Runner) beginCompensation(ctx context.Context, record saga.Bootstrap, cause error) (saga.Bootstrap, error) {
	r.logf("saga %s compensating: %v", record.ID, cause)
	record, err := saga.Transition(record, saga.StateCompensating, r.now)
	if err != nil {
		return record, err
	}
	record.Attempts = 0
	if cause != nil {
		record.LastError = cause.Error()
	}
	if err := r.store.UpdateSaga(ctx, record); err != nil {
		return record, err
	}
	return record, nil
}

// stepCreateEntities appends the organization, contact, address, phone, and
// link events. Idempotency is dual-keyed: by subdomain when one was
// supplied, otherwise by name among subdomain-less organizations. Finding
// an organization this saga did not create means a previous workflow
// partially completed; that is fatal rather than repaired in place.
func (r *Runner) stepCreateEntities(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	var request saga.Request
	if err := json.Unmarshal(record.RequestJSON, &request); err != nil {
		return record, saga.Permanent(fmt.Errorf("decode saga request: %w", err))
	}

	existingID, err := r.findExisting(ctx, request)
	if err != nil {
		return record, err
	}
	if existingID != "" && existingID != record.OrganizationID {
		return record, saga.Permanent(apperrors.WithMetadata(apperrors.CodeOrgBootstrapPartiallyApplied,
			"an organization for this bootstrap request already exists", map[string]string{
				"existing_organization_id": existingID,
				"saga_id":                  record.ID,
			}))
	}

	appended, err := r.entityEventsAppended(ctx, record)
	if err != nil {
		return record, err
	}
	if !appended {
		record, err = r.appendEntityEvents(ctx, record, request)
		if err != nil {
			return record, err
		}
	}
	if _, err := r.dispatcher.Drain(ctx); err != nil {
		return record, err
	}

	next := saga.StateDNSConfiguring
	if record.DNSSkipped {
		return r.stepSendInvitations(ctx, record)
	}
	record, err = saga.Transition(record, next, r.now)
	if err != nil {
		return record, err
	}
	return record, r.store.UpdateSaga(ctx, record)
}

func (r *Runner) findExisting(ctx context.Context, request saga.Request) (string, error) {
	var existing org.Organization
	var err error
	if request.Subdomain != "" {
		existing, err = r.store.FindOrganizationBySubdomain(ctx, request.Subdomain)
	} else {
		existing, err = r.store.FindOrganizationByName(ctx, request.OrgData.Name)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return existing.ID, nil
}

// entityEventsAppended reports whether this saga's organization.created
// event is already in the journal, so activity retries never re-emit.
func (r *Runner) entityEventsAppended(ctx context.Context, record saga.Bootstrap) (bool, error) {
	events, err := r.store.ListStreamEvents(ctx, record.OrganizationID, event.StreamTypeOrganization)
	if err != nil {
		return false, err
	}
	for _, evt := range events {
		if evt.Type == event.TypeOrganizationCreated {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) appendEntityEvents(ctx context.Context, record saga.Bootstrap, request saga.Request) (saga.Bootstrap, error) {
	created, err := org.CreateOrganization(org.CreateOrganizationInput{
		Name:               request.OrgData.Name,
		Type:               org.TypeFromLabel(request.OrgData.Type),
		PartnerType:        org.PartnerTypeFromLabel(request.OrgData.PartnerType),
		ReferringPartnerID: request.OrgData.ReferringPartnerID,
		Subdomain:          request.Subdomain,
	}, r.now, func() (string, error) { return record.OrganizationID, nil })
	if err != nil {
		return record, saga.Permanent(err)
	}

	if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
		event.TypeOrganizationCreated, event.OrganizationCreatedPayload{
			OrganizationID:     created.ID,
			Name:               created.Name,
			Type:               org.TypeLabel(created.Type),
			PartnerType:        org.PartnerTypeLabel(created.PartnerType),
			ReferringPartnerID: created.ReferringPartnerID,
			Subdomain:          created.Subdomain,
			SubdomainStatus:    org.SubdomainStatusLabel(created.SubdomainStatus),
		}); err != nil {
		return record, err
	}

	for _, input := range request.Contacts {
		contact, err := org.CreateContact(org.CreateContactInput{
			OrganizationID: record.OrganizationID,
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			Email:          input.Email,
			Type:           org.ContactTypeFromLabel(input.Type),
			Label:          input.Label,
		}, r.now, r.idGenerator)
		if err != nil {
			return record, saga.Permanent(err)
		}
		if err := r.append(ctx, record, event.StreamTypeContact, contact.ID,
			event.TypeContactCreated, event.ContactCreatedPayload{
				ContactID:      contact.ID,
				OrganizationID: contact.OrganizationID,
				FirstName:      contact.FirstName,
				LastName:       contact.LastName,
				Email:          contact.Email,
				Type:           org.ContactTypeLabel(contact.Type),
				Label:          contact.Label,
			}); err != nil {
			return record, err
		}
		if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
			event.TypeOrganizationContactLinked, event.LinkPayload{
				Entity1ID: record.OrganizationID,
				Entity2ID: contact.ID,
			}); err != nil {
			return record, err
		}
		record.ContactIDs = append(record.ContactIDs, contact.ID)
	}

	for _, input := range request.Addresses {
		address, err := org.CreateAddress(org.CreateAddressInput{
			OrganizationID: record.OrganizationID,
			Line1:          input.Line1,
			Line2:          input.Line2,
			City:           input.City,
			State:          input.State,
			PostalCode:     input.PostalCode,
			Type:           org.AddressTypeFromLabel(input.Type),
			Label:          input.Label,
		}, r.now, r.idGenerator)
		if err != nil {
			return record, saga.Permanent(err)
		}
		if err := r.append(ctx, record, event.StreamTypeAddress, address.ID,
			event.TypeAddressCreated, event.AddressCreatedPayload{
				AddressID:      address.ID,
				OrganizationID: address.OrganizationID,
				Line1:          address.Line1,
				Line2:          address.Line2,
				City:           address.City,
				State:          address.State,
				PostalCode:     address.PostalCode,
				Type:           org.AddressTypeLabel(address.Type),
				Label:          address.Label,
			}); err != nil {
			return record, err
		}
		if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
			event.TypeOrganizationAddressLinked, event.LinkPayload{
				Entity1ID: record.OrganizationID,
				Entity2ID: address.ID,
			}); err != nil {
			return record, err
		}
		record.AddressIDs = append(record.AddressIDs, address.ID)
	}

	for _, input := range request.Phones {
		phone, err := org.CreatePhone(org.CreatePhoneInput{
			OrganizationID: record.OrganizationID,
			Number:         input.Number,
			Type:           org.PhoneTypeFromLabel(input.Type),
			Label:          input.Label,
		}, r.now, r.idGenerator)
		if err != nil {
			return record, saga.Permanent(err)
		}
		if err := r.append(ctx, record, event.StreamTypePhone, phone.ID,
			event.TypePhoneCreated, event.PhoneCreatedPayload{
				PhoneID:        phone.ID,
				OrganizationID: phone.OrganizationID,
				Number:         phone.Number,
				Type:           org.PhoneTypeLabel(phone.Type),
				Label:          phone.Label,
			}); err != nil {
			return record, err
		}
		if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
			event.TypeOrganizationPhoneLinked, event.LinkPayload{
				Entity1ID: record.OrganizationID,
				Entity2ID: phone.ID,
			}); err != nil {
			return record, err
		}
		record.PhoneIDs = append(record.PhoneIDs, phone.ID)
	}

	record.UpdatedAt = r.now().UTC()
	return record, r.store.UpdateSaga(ctx, record)
}

// stepConfigureDNS creates the registrar record and moves the subdomain
// projection from pending to dns_created.
func (r *Runner) stepConfigureDNS(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	organization, err := r.store.GetOrganization(ctx, record.OrganizationID)
	if err != nil {
		return record, err
	}

	if record.DNSRecordID == "" {
		dnsRecord, err := r.registrar.CreateRecord(ctx, organization.Subdomain)
		if err != nil {
			return record, err
		}
		record.DNSRecordID = dnsRecord.ID
		record.UpdatedAt = r.now().UTC()
		if err := r.store.UpdateSaga(ctx, record); err != nil {
			return record, err
		}
	}

	if err := r.appendSubdomainStatus(ctx, record, organization.SubdomainStatus, org.SubdomainStatusDNSCreated); err != nil {
		return record, err
	}
	record, err = saga.Transition(record, saga.StateDNSVerifying, r.now)
	if err != nil {
		return record, err
	}
	return record, r.store.UpdateSaga(ctx, record)
}

// errDNSPropagationPending signals that the saga is waiting on DNS
// propagation. Not a failure: the step yields and a later poll checks again,
// so one slow organization never blocks the others in the batch.
var errDNSPropagationPending = errors.New("dns propagation pending")

// stepVerifyDNS queries the registrar at most once per step, deferring the
// next check with exponential backoff persisted on the saga record.
// Exhausting the attempt budget is unrecoverable.
func (r *Runner) stepVerifyDNS(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	organization, err := r.store.GetOrganization(ctx, record.OrganizationID)
	if err != nil {
		return record, err
	}
	if organization.SubdomainStatus == org.SubdomainStatusDNSCreated {
		if err := r.appendSubdomainStatus(ctx, record, org.SubdomainStatusDNSCreated, org.SubdomainStatusVerifying); err != nil {
			return record, err
		}
	}

	if !record.NextVerifyAt.IsZero() && r.now().Before(record.NextVerifyAt) {
		return record, errDNSPropagationPending
	}

	propagated, err := r.registrar.VerifyRecord(ctx, record.DNSRecordID)
	if err != nil {
		return record, err
	}
	if propagated {
		if err := r.appendSubdomainStatus(ctx, record, org.SubdomainStatusVerifying, org.SubdomainStatusVerified); err != nil {
			return record, err
		}
		record.NextVerifyAt = time.Time{}
		return r.stepSendInvitations(ctx, record)
	}

	record.DNSVerifyAttempts++
	if record.DNSVerifyAttempts >= r.cfg.DNSVerifyMaxAttempts {
		if err := r.appendSubdomainStatus(ctx, record, org.SubdomainStatusVerifying, org.SubdomainStatusFailed); err != nil {
			return record, err
		}
		return record, saga.Permanent(fmt.Errorf("dns record %s did not propagate after %d attempts",
			record.DNSRecordID, record.DNSVerifyAttempts))
	}

	record.NextVerifyAt = r.now().UTC().Add(r.verifyBackoff(record.DNSVerifyAttempts))
	record.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateSaga(ctx, record); err != nil {
		return record, err
	}
	return record, errDNSPropagationPending
}

// verifyBackoff doubles the verify interval per completed check, capped at
// the configured maximum delay.
func (r *Runner) verifyBackoff(attempts int) time.Duration {
	delay := r.cfg.DNSVerifyInterval
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= r.cfg.DNSVerifyMaxDelay {
			return r.cfg.DNSVerifyMaxDelay
		}
	}
	return delay
}

// stepSendInvitations issues an administrative invitation per contact with
// an email address. Redelivery is safe: invitation inserts are keyed by id
// and senders deduplicate on the invitation's dedupe key.
func (r *Runner) stepSendInvitations(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	if len(record.InvitationIDs) == 0 {
		contacts, err := r.store.ListContactsByOrganization(ctx, record.OrganizationID)
		if err != nil {
			return record, err
		}
		for _, contact := range contacts {
			if contact.Email == "" {
				continue
			}
			invitation, err := invite.CreateInvitation(invite.CreateInvitationInput{
				OrganizationID: record.OrganizationID,
				Email:          contact.Email,
				TTL:            r.cfg.InvitationTTL,
			}, r.now, r.idGenerator)
			if err != nil {
				return record, saga.Permanent(err)
			}
			record.InvitationIDs = append(record.InvitationIDs, invitation.ID)
			record.UpdatedAt = r.now().UTC()
			if err := r.store.UpdateSaga(ctx, record); err != nil {
				return record, err
			}
			if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
				event.TypeInvitationCreated, event.InvitationCreatedPayload{
					InvitationID:   invitation.ID,
					OrganizationID: invitation.OrganizationID,
					Email:          invitation.Email,
					Role:           invitation.Role,
					ExpiresAt:      invitation.ExpiresAt.Format(time.RFC3339),
				}); err != nil {
				return record, err
			}
		}
	}
	if _, err := r.dispatcher.Drain(ctx); err != nil {
		return record, err
	}

	for _, invitationID := range record.InvitationIDs {
		invitation, err := r.store.GetInvitation(ctx, invitationID)
		if err != nil {
			return record, err
		}
		token, err := r.signer.Mint(invitation)
		if err != nil {
			return record, err
		}
		if err := r.sender.SendInvitation(ctx, notify.MessageFor(invitation, token)); err != nil {
			return record, err
		}
		if err := r.store.SetInvitationStatus(ctx, invitationID, invite.StatusSent, r.now().UTC()); err != nil {
			return record, err
		}
	}

	record, err := saga.Transition(record, saga.StateInvitationsSent, r.now)
	if err != nil {
		return record, err
	}
	return record, r.store.UpdateSaga(ctx, record)
}

// stepActivate appends the activation event and completes the saga.
func (r *Runner) stepActivate(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
		event.TypeOrganizationActivated, event.OrganizationActivatedPayload{
			OrganizationID: record.OrganizationID,
		}); err != nil {
		return record, err
	}
	if _, err := r.dispatcher.Drain(ctx); err != nil {
		return record, err
	}
	record, err := saga.Transition(record, saga.StateActivated, r.now)
	if err != nil {
		return record, err
	}
	record.LastError = ""
	return record, r.store.UpdateSaga(ctx, record)
}

// stepCompensate undoes completed forward work in strict reverse order.
// Every sub-step is best-effort: a failure is logged and the remaining
// steps still run, so compensation always terminates.
func (r *Runner) stepCompensate(ctx context.Context, record saga.Bootstrap) (saga.Bootstrap, error) {
	for _, step := range saga.CompensationPlan(record) {
		var err error
		switch step {
		case saga.CompensateInvitations:
			err = r.compensateInvitations(ctx, record)
		case saga.CompensateDNS:
			err = r.compensateDNS(ctx, record)
		case saga.CompensatePhones:
			err = r.compensateEntities(ctx, record, event.StreamTypePhone, record.PhoneIDs)
		case saga.CompensateAddresses:
			err = r.compensateEntities(ctx, record, event.StreamTypeAddress, record.AddressIDs)
		case saga.CompensateContacts:
			err = r.compensateEntities(ctx, record, event.StreamTypeContact, record.ContactIDs)
		case saga.CompensateOrganization:
			err = r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
				event.TypeOrganizationDeleted, event.OrganizationDeletedPayload{
					OrganizationID: record.OrganizationID,
					Reason:         "bootstrap compensated",
				})
		}
		if err != nil {
			r.logf("saga %s compensation step %d: %v", record.ID, step, err)
		}
	}
	if _, err := r.dispatcher.Drain(ctx); err != nil {
		r.logf("saga %s drain after compensation: %v", record.ID, err)
	}

	record, err := saga.Transition(record, saga.StateCompensated, r.now)
	if err != nil {
		return record, err
	}
	return record, r.store.UpdateSaga(ctx, record)
}

func (r *Runner) compensateInvitations(ctx context.Context, record saga.Bootstrap) error {
	var firstErr error
	for _, invitationID := range record.InvitationIDs {
		err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
			event.TypeInvitationRevoked, event.InvitationRevokedPayload{
				InvitationID: invitationID,
				Reason:       "bootstrap compensated",
			})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) compensateDNS(ctx context.Context, record saga.Bootstrap) error {
	if err := r.registrar.DeleteRecord(ctx, record.DNSRecordID); err != nil {
		return err
	}
	organization, err := r.store.GetOrganization(ctx, record.OrganizationID)
	if err != nil {
		return err
	}
	if organization.SubdomainStatus != org.SubdomainStatusFailed && organization.SubdomainStatus != org.SubdomainStatusNone {
		return r.appendSubdomainStatus(ctx, record, organization.SubdomainStatus, org.SubdomainStatusFailed)
	}
	return nil
}

func (r *Runner) compensateEntities(ctx context.Context, record saga.Bootstrap, streamType event.StreamType, ids []string) error {
	var firstErr error
	for _, entityID := range ids {
		var eventType event.Type
		var payload any
		switch streamType {
		case event.StreamTypeContact:
			eventType = event.TypeContactDeleted
			payload = event.ContactDeletedPayload{ContactID: entityID, Reason: "bootstrap compensated"}
		case event.StreamTypeAddress:
			eventType = event.TypeAddressDeleted
			payload = event.AddressDeletedPayload{AddressID: entityID, Reason: "bootstrap compensated"}
		case event.StreamTypePhone:
			eventType = event.TypePhoneDeleted
			payload = event.PhoneDeletedPayload{PhoneID: entityID, Reason: "bootstrap compensated"}
		default:
			continue
		}
		if err := r.append(ctx, record, streamType, entityID, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) appendSubdomainStatus(ctx context.Context, record saga.Bootstrap, from, to org.SubdomainStatus) error {
	if !org.CanTransitionSubdomainStatus(from, to) {
		return saga.Permanent(apperrors.WithMetadata(apperrors.CodeOrgInvalidStatusTransition,
			"invalid subdomain status transition", map[string]string{
				"from": org.SubdomainStatusLabel(from),
				"to":   org.SubdomainStatusLabel(to),
			}))
	}
	if err := r.append(ctx, record, event.StreamTypeOrganization, record.OrganizationID,
		event.TypeSubdomainStatusChanged, event.SubdomainStatusChangedPayload{
			OrganizationID: record.OrganizationID,
			FromStatus:     org.SubdomainStatusLabel(from),
			ToStatus:       org.SubdomainStatusLabel(to),
			DNSRecordID:    record.DNSRecordID,
		}); err != nil {
		return err
	}
	_, err := r.dispatcher.Drain(ctx)
	return err
}

func (r *Runner) append(ctx context.Context, record saga.Bootstrap, streamType event.StreamType, streamID string, eventType event.Type, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	metadataJSON, err := json.Marshal(event.Metadata{SagaID: record.ID, Actor: "saga"})
	if err != nil {
		return fmt.Errorf("encode %s metadata: %w", eventType, err)
	}
	_, err = r.store.AppendEvent(ctx, event.Event{
		StreamID:     streamID,
		StreamType:   streamType,
		Type:         eventType,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
		CreatedAt:    r.now().UTC(),
	})
	return err
}
