package accesskit

import "context"

// ============================================================================
// AUDIT LOG
// ============================================================================

// AuditLog retrieves audit log entries, newest first. Requires access_rules/read.
//
// Example:
//
//	filter := accesskit.NewAuditLogFilter().
//	    WithEntity(accesskit.EntityRule, "").
//	    WithPagination(50, 0)
//	entries, err := service.AuditLog(ctx, caller, filter)
func (s *Service) AuditLog(ctx context.Context, caller *Principal, filter AuditLogFilter) ([]AuditLog, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	logs, err := s.store.ListAudit(ctx, filter)
	if err != nil {
		return nil, storageError("ListAudit", err)
	}
	return logs, nil
}
