package i18n

// frenchMessages contains all French translations.
var frenchMessages = map[string]string{
	"error.generic":              "Une erreur est survenue. Merci de réessayer.",
	"error.request.invalid":      "Requête invalide.",
	"error.request.missing":      "Paramètre manquant : %s",
	"error.session.invalid":      "Ce lien de soirée n'est plus valide. Demande le nouveau à l'hôte.",
	"error.auth.required":        "Authentification requise.",
	"error.auth.login_failed":    "La connexion à Spotify a échoué. Réessaie.",
	"error.queue.already_queued": "Ce morceau est déjà dans la file.",
	"error.queue.cooldown":       "Ce morceau a été joué récemment. Réessaie dans %d min.",
	"error.queue.rate_limited":   "Tu as ajouté beaucoup de morceaux. Patiente un peu avant d'en ajouter d'autres.",
	"error.spotify.not_found":    "Impossible de trouver ce morceau sur Spotify.",
	"error.spotify.unavailable":  "Spotify est injoignable pour le moment.",
	"error.suggest.unavailable":  "Suggestions indisponibles : aucune clé Last.fm n'est configurée.",
	"error.photo.too_large":      "Photo trop lourde (max %d Mo).",
	"error.photo.unsupported":    "Format de photo non supporté.",
	"error.photo.not_found":      "Aucune photo trouvée.",

	"success.track_added":    "Ajouté : %s - %s",
	"success.track_removed":  "Retiré de la file.",
	"success.session_reset":  "Nouvelle session : %s",
	"success.photo_uploaded": "Photo envoyée. Merci !",

	"format.reason.similar": "Similaire",
	"format.reason.tempo":   "tempo ~%d (Δ≈%d)",
	"format.reason.key":     "clé %s ↔ %s",
}
