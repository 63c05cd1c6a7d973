package i18n

var frFRMessages = map[Code]string{
	CodeGridInvalidPage:       "La page {{.Page}} n'est pas valide.",
	CodeGridInvalidPageSize:   "La taille de page {{.PageSize}} n'est pas autorisée.",
	CodeGridInvalidSort:       "Impossible de trier par {{.Sort}}.",
	CodeGridClosed:            "Ce tableau est fermé.",
	CodeGridFetchFailed:       "Les lignes n'ont pas pu être chargées. Réessayez.",
	CodeGridPayloadInvalid:    "La source de données a renvoyé une page illisible.",
	CodeGridRemoteUnavailable: "La source de données est indisponible pour le moment.",
	CodeGridVisibilityStore:   "Les réglages de colonnes n'ont pas pu être enregistrés.",
}
