// Package webhook turns signed inbound HTTP payloads into server-sourced
// todo actions.
//
// Each endpoint is bound to one action type. The request body is the action's
// JSON body, authenticated by an HMAC-SHA256 signature over the raw bytes:
//
//	api:
//	  webhooks:
//	    - name: inbox
//	      action: todo.add
//	      secret: ${FLUXD_INBOX_SECRET}
//	      signature_header: X-Hub-Signature-256
//	      max_body_size: 16KB
//
// A POST to /webhooks/inbox with {"title":"call back"} and a valid signature
// dispatches AddTodo. Signature failures always answer a bare 403.
package webhook
