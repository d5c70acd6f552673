package auth

// Permission strings derived from role codes. The prefix matches what the
// claims services expect in access tokens.
const (
	PermUserManagement       = "PERMISSION_USER_MANAGEMENT"
	PermRoleManagement       = "PERMISSION_ROLE_MANAGEMENT"
	PermDepartmentManagement = "PERMISSION_DEPARTMENT_MANAGEMENT"
	PermSystemConfig         = "PERMISSION_SYSTEM_CONFIG"
	PermAllReports           = "PERMISSION_ALL_REPORTS"
	PermViewAllClaims        = "PERMISSION_VIEW_ALL_CLAIMS"
	PermManagePolicies       = "PERMISSION_MANAGE_POLICIES"

	PermReviewClaims  = "PERMISSION_REVIEW_CLAIMS"
	PermApproveClaims = "PERMISSION_APPROVE_CLAIMS"
	PermRejectClaims  = "PERMISSION_REJECT_CLAIMS"
	PermAccessReports = "PERMISSION_ACCESS_REPORTS"

	PermVerifyClaims          = "PERMISSION_VERIFY_CLAIMS"
	PermViewPatientClaims     = "PERMISSION_VIEW_PATIENT_CLAIMS"
	PermUploadMedicalRecords  = "PERMISSION_UPLOAD_MEDICAL_RECORDS"
	PermProvideMedicalOpinion = "PERMISSION_PROVIDE_MEDICAL_OPINION"

	PermSubmitClaims    = "PERMISSION_SUBMIT_CLAIMS"
	PermViewOwnClaims   = "PERMISSION_VIEW_OWN_CLAIMS"
	PermUploadDocuments = "PERMISSION_UPLOAD_DOCUMENTS"
	PermViewClaimStatus = "PERMISSION_VIEW_CLAIM_STATUS"
	PermUpdateProfile   = "PERMISSION_UPDATE_PROFILE"
)

// rolePermissions is the fixed role-code to permission mapping, built once at
// startup. Extending a role is a data change here, not a code change at every
// call site.
var rolePermissions = map[string][]string{
	string(RoleAdmin): {
		PermUserManagement,
		PermRoleManagement,
		PermDepartmentManagement,
		PermSystemConfig,
		PermAllReports,
		PermViewAllClaims,
		PermManagePolicies,
	},
	string(RoleInsuranceProvider): {
		PermReviewClaims,
		PermApproveClaims,
		PermRejectClaims,
		PermAccessReports,
		PermManagePolicies,
	},
	string(RoleDoctor): {
		PermVerifyClaims,
		PermViewPatientClaims,
		PermUploadMedicalRecords,
		PermProvideMedicalOpinion,
	},
	string(RolePatient): {
		PermSubmitClaims,
		PermViewOwnClaims,
		PermUploadDocuments,
		PermViewClaimStatus,
		PermUpdateProfile,
	},
}

// PermissionsForRole returns the permissions granted by a single role code.
// Unrecognized codes grant nothing.
func PermissionsForRole(code string) []string {
	perms := rolePermissions[code]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// PermissionsForRoles unions the permissions of the given role codes,
// preserving role order and dropping duplicates across roles.
func PermissionsForRoles(codes []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, code := range codes {
		for _, p := range rolePermissions[code] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// EffectiveRoleCodes returns the distinct codes of the active assignments in
// assignment order, first assigned first.
func EffectiveRoleCodes(assignments []UserRole) []string {
	seen := make(map[string]struct{}, len(assignments))
	var out []string
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		if _, ok := seen[a.RoleCode]; ok {
			continue
		}
		seen[a.RoleCode] = struct{}{}
		out = append(out, a.RoleCode)
	}
	return out
}

// PrimaryAssignment returns the single active assignment marked primary, or
// nil when none is. Callers must not assume a primary exists.
func PrimaryAssignment(assignments []UserRole) *UserRole {
	for i := range assignments {
		if assignments[i].IsActive && assignments[i].IsPrimary {
			return &assignments[i]
		}
	}
	return nil
}
