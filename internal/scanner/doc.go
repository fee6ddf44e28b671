// Package scanner implements WebGuard's single-request security assessment.
//
// Architecture overview:
//
//   - Fetcher performs exactly one GET (following redirects) and captures the
//     final URL, status, headers, raw Set-Cookie lines and page title into a
//     Response. HTTPFetcher is the production implementation.
//   - Evaluate applies the fixed checklist (HTTPS, seven security headers,
//     three cookie attributes per cookie) to a Response and returns Findings
//     in a deterministic order. It performs no I/O.
//   - Aggregate turns findings into a 0-100 score by subtracting each
//     finding's points from 100 and flooring at zero; CalculateGrade maps the
//     score to a letter.
//   - Scanner glues the three together for callers in internal/application
//     and cmd/.
package scanner
